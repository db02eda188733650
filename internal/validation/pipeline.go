// Package validation runs configured validators against a task's produced
// artifacts before the task may transition to done.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/pkg/models"
)

// Validator checks one aspect of a task's artifacts. A non-nil error is a
// failure; its message goes into the report verbatim.
type Validator interface {
	// Name identifies the validator in reports.
	Name() string
	// Validate checks the task. The context carries the pipeline timeout.
	Validate(ctx context.Context, task *models.Task) error
}

// Pipeline runs validators in configured order and collects every failure
// rather than short-circuiting, so an agent gets full feedback in one round
// trip.
type Pipeline struct {
	validators []Validator
	timeout    time.Duration
}

// New creates a Pipeline over the given validators.
func New(validators []Validator, timeout time.Duration) *Pipeline {
	return &Pipeline{validators: validators, timeout: timeout}
}

// FromSpecs builds a Pipeline from a task's configured validator specs.
// Unknown validator names fail loudly.
func FromSpecs(specs []models.ValidatorSpec, dir *config.Dir, timeout time.Duration) (*Pipeline, error) {
	var validators []Validator
	for _, spec := range specs {
		v, err := build(spec, dir)
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}
	return New(validators, timeout), nil
}

// build constructs a single built-in validator from its spec.
func build(spec models.ValidatorSpec, dir *config.Dir) (Validator, error) {
	switch spec.Name {
	case "artifact_exists":
		return &ArtifactExists{Root: dir.Path}, nil
	case "artifact_nonempty":
		return &ArtifactNonempty{Root: dir.Path}, nil
	case "command":
		if len(spec.Command) == 0 {
			return nil, fmt.Errorf("validator %q: empty command", spec.Name)
		}
		return &CommandValidator{Argv: spec.Command, Dir: dir.Path}, nil
	default:
		return nil, fmt.Errorf("unknown validator %q", spec.Name)
	}
}

// Run executes every validator in order and returns the collected report.
func (p *Pipeline) Run(ctx context.Context, task *models.Task) models.ValidationReport {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	report := models.ValidationReport{
		Passed: true,
		RanAt:  time.Now().UTC(),
	}

	for _, v := range p.validators {
		if err := v.Validate(ctx, task); err != nil {
			report.Passed = false
			report.Failures = append(report.Failures, models.ValidationFailure{
				Validator: v.Name(),
				Message:   err.Error(),
			})
		}
	}

	return report
}

// Len returns the number of configured validators.
func (p *Pipeline) Len() int {
	return len(p.validators)
}

package validation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/corralhq/corral/pkg/models"
)

// ArtifactExists fails unless every declared artifact path exists under the
// resolved root.
type ArtifactExists struct {
	// Root is the resolved config directory artifacts are relative to.
	Root string
}

// Name implements Validator.
func (v *ArtifactExists) Name() string { return "artifact_exists" }

// Validate implements Validator.
func (v *ArtifactExists) Validate(_ context.Context, task *models.Task) error {
	if len(task.Artifacts) == 0 {
		return fmt.Errorf("task declares no artifacts")
	}

	var missing []string
	for _, rel := range task.Artifacts {
		if _, err := os.Stat(filepath.Join(v.Root, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing artifacts: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ArtifactNonempty fails if any declared artifact is empty.
type ArtifactNonempty struct {
	Root string
}

// Name implements Validator.
func (v *ArtifactNonempty) Name() string { return "artifact_nonempty" }

// Validate implements Validator.
func (v *ArtifactNonempty) Validate(_ context.Context, task *models.Task) error {
	var empty []string
	for _, rel := range task.Artifacts {
		info, err := os.Stat(filepath.Join(v.Root, rel))
		if err != nil {
			empty = append(empty, rel)
			continue
		}
		if info.Size() == 0 {
			empty = append(empty, rel)
		}
	}
	if len(empty) > 0 {
		return fmt.Errorf("empty or missing artifacts: %s", strings.Join(empty, ", "))
	}
	return nil
}

// CommandValidator runs an external command; a non-zero exit is a failure.
// Output is folded into the failure message so the agent sees what broke.
type CommandValidator struct {
	// Argv is the command and its arguments.
	Argv []string
	// Dir is the working directory for the command.
	Dir string
}

// Name implements Validator.
func (v *CommandValidator) Name() string { return "command" }

// Validate implements Validator.
func (v *CommandValidator) Validate(ctx context.Context, _ *models.Task) error {
	cmd := exec.CommandContext(ctx, v.Argv[0], v.Argv[1:]...)
	cmd.Dir = v.Dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.TrimSpace(string(output))
		if len(out) > 500 {
			out = out[:500] + "..."
		}
		if out == "" {
			return fmt.Errorf("%s: %v", strings.Join(v.Argv, " "), err)
		}
		return fmt.Errorf("%s: %v\n%s", strings.Join(v.Argv, " "), err, out)
	}
	return nil
}

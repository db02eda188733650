package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/pkg/models"
)

type fakeValidator struct {
	name string
	err  error
}

func (v fakeValidator) Name() string { return v.name }

func (v fakeValidator) Validate(_ context.Context, _ *models.Task) error { return v.err }

func TestRun_CollectsEveryFailure(t *testing.T) {
	p := New([]Validator{
		fakeValidator{name: "first", err: errors.New("no output file")},
		fakeValidator{name: "second"},
		fakeValidator{name: "third", err: errors.New("tests failed")},
	}, time.Minute)

	report := p.Run(context.Background(), &models.Task{ID: "t1"})
	if report.Passed {
		t.Error("report passed despite failures")
	}
	if len(report.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(report.Failures))
	}
	// Order follows configuration; no short-circuit after the first failure.
	if report.Failures[0].Validator != "first" || report.Failures[1].Validator != "third" {
		t.Errorf("unexpected failure order: %+v", report.Failures)
	}
	if report.RanAt.IsZero() {
		t.Error("RanAt not stamped")
	}
}

func TestRun_EmptyPipelinePasses(t *testing.T) {
	p := New(nil, time.Minute)
	report := p.Run(context.Background(), &models.Task{ID: "t1"})
	if !report.Passed {
		t.Errorf("empty pipeline failed: %+v", report)
	}
}

func TestFromSpecs_UnknownName(t *testing.T) {
	dir := &config.Dir{Path: t.TempDir(), Source: config.SourceFlag}
	_, err := FromSpecs([]models.ValidatorSpec{{Name: "lint"}}, dir, time.Minute)
	if err == nil {
		t.Fatal("expected error for unknown validator name")
	}
	if !strings.Contains(err.Error(), "lint") {
		t.Errorf("error does not name the validator: %v", err)
	}
}

func TestFromSpecs_CommandNeedsArgv(t *testing.T) {
	dir := &config.Dir{Path: t.TempDir(), Source: config.SourceFlag}
	_, err := FromSpecs([]models.ValidatorSpec{{Name: "command"}}, dir, time.Minute)
	if err == nil {
		t.Fatal("expected error for command validator without argv")
	}
}

func TestFromSpecs_BuildsConfiguredSet(t *testing.T) {
	dir := &config.Dir{Path: t.TempDir(), Source: config.SourceFlag}
	p, err := FromSpecs([]models.ValidatorSpec{
		{Name: "artifact_exists"},
		{Name: "artifact_nonempty"},
		{Name: "command", Command: []string{"true"}},
	}, dir, time.Minute)
	if err != nil {
		t.Fatalf("FromSpecs failed: %v", err)
	}
	if p.Len() != 3 {
		t.Errorf("Len = %d, want 3", p.Len())
	}
}

func TestArtifactExists(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "out.txt"), []byte("data"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	v := &ArtifactExists{Root: root}

	task := &models.Task{ID: "t1", Artifacts: []string{"out.txt"}}
	if err := v.Validate(context.Background(), task); err != nil {
		t.Errorf("existing artifact failed: %v", err)
	}

	task.Artifacts = []string{"out.txt", "missing.txt"}
	err := v.Validate(context.Background(), task)
	if err == nil {
		t.Fatal("missing artifact passed")
	}
	if !strings.Contains(err.Error(), "missing.txt") {
		t.Errorf("error does not name the missing artifact: %v", err)
	}
}

func TestArtifactExists_NoArtifactsDeclared(t *testing.T) {
	v := &ArtifactExists{Root: t.TempDir()}
	if err := v.Validate(context.Background(), &models.Task{ID: "t1"}); err == nil {
		t.Error("task without declared artifacts passed artifact_exists")
	}
}

func TestArtifactNonempty(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "full.txt"), []byte("data"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "empty.txt"), nil, 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	v := &ArtifactNonempty{Root: root}

	if err := v.Validate(context.Background(), &models.Task{Artifacts: []string{"full.txt"}}); err != nil {
		t.Errorf("non-empty artifact failed: %v", err)
	}
	err := v.Validate(context.Background(), &models.Task{Artifacts: []string{"full.txt", "empty.txt"}})
	if err == nil {
		t.Fatal("empty artifact passed")
	}
	if !strings.Contains(err.Error(), "empty.txt") {
		t.Errorf("error does not name the empty artifact: %v", err)
	}
}

func TestCommandValidator(t *testing.T) {
	dir := t.TempDir()

	ok := &CommandValidator{Argv: []string{"true"}, Dir: dir}
	if err := ok.Validate(context.Background(), &models.Task{}); err != nil {
		t.Errorf("true exited non-zero? %v", err)
	}

	bad := &CommandValidator{Argv: []string{"false"}, Dir: dir}
	if err := bad.Validate(context.Background(), &models.Task{}); err == nil {
		t.Error("false passed")
	}
}

func TestCommandValidator_CapturesOutput(t *testing.T) {
	v := &CommandValidator{Argv: []string{"sh", "-c", "echo it broke >&2; exit 3"}, Dir: t.TempDir()}
	err := v.Validate(context.Background(), &models.Task{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "it broke") {
		t.Errorf("command output not folded into error: %v", err)
	}
}

func TestRun_TimeoutCancelsCommands(t *testing.T) {
	p := New([]Validator{
		&CommandValidator{Argv: []string{"sleep", "5"}, Dir: t.TempDir()},
	}, 50*time.Millisecond)

	start := time.Now()
	report := p.Run(context.Background(), &models.Task{ID: "t1"})
	if report.Passed {
		t.Error("timed-out command passed")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, ran for %v", elapsed)
	}
}

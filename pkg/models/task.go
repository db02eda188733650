package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusReady indicates the task is available for claiming.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusClaimed indicates an agent holds the task but has not started.
	TaskStatusClaimed TaskStatus = "claimed"
	// TaskStatusInProgress indicates the owning agent is working the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusDone indicates the task completed and passed validation.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusReady, TaskStatusClaimed, TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Owned returns true if the status requires a non-empty owner.
func (s TaskStatus) Owned() bool {
	return s == TaskStatusClaimed || s == TaskStatusInProgress
}

// ValidatorSpec names a configured validator for a task. The ordered list is
// supplied at task creation time and treated as opaque input by the coordinator.
type ValidatorSpec struct {
	// Name is the validator name (artifact_exists, artifact_nonempty, command).
	Name string `json:"name" yaml:"name"`
	// Command is the argv for the command validator.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`
}

// ValidationFailure records a single validator failure.
type ValidationFailure struct {
	// Validator is the name of the validator that failed.
	Validator string `json:"validator"`
	// Message explains the failure.
	Message string `json:"message"`
}

// ValidationReport is the persisted result of the last validation run for a task.
type ValidationReport struct {
	// Passed is true if every configured validator passed.
	Passed bool `json:"passed"`
	// Failures lists all failures in validator order. The pipeline does not
	// short-circuit, so an agent gets full feedback in one round trip.
	Failures []ValidationFailure `json:"failures,omitempty"`
	// RanAt is when the validation ran.
	RanAt time.Time `json:"ran_at"`
}

// Task represents a unit of work in a session backlog.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// SessionID references the session this task belongs to.
	SessionID string `json:"session_id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Owner is the ID of the agent holding the task. Non-empty iff the
	// status is claimed or in_progress.
	Owner string `json:"owner,omitempty"`
	// DependsOn lists task IDs that must be done before this task can
	// leave ready.
	DependsOn []string `json:"depends_on,omitempty"`
	// Artifacts lists paths (relative to the resolved config directory)
	// the agent is expected to produce.
	Artifacts []string `json:"artifacts,omitempty"`
	// Validators is the ordered validator list to run before done.
	Validators []ValidatorSpec `json:"validators,omitempty"`
	// LastValidation is the most recent validation report, if any.
	LastValidation *ValidationReport `json:"last_validation,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// Version is the monotonic stamp used for optimistic concurrency.
	Version int64 `json:"version"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is bumped on every write, including heartbeats. Claim
	// staleness is judged against it.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task reached done, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OwnerConsistent reports whether the owner field agrees with the status.
func (t *Task) OwnerConsistent() bool {
	if t.Status.Owned() {
		return t.Owner != ""
	}
	return t.Owner == ""
}

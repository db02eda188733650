package claim

import (
	"fmt"

	"github.com/corralhq/corral/pkg/models"
)

// ConflictError is returned when a claim loses to a concurrent agent or the
// task's preconditions do not hold. It carries enough context for an operator
// to diagnose without inspecting records.
type ConflictError struct {
	TaskID string
	Owner  string
	Status models.TaskStatus
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("claim conflict on task %s: %s (status %s, owner %s)", e.TaskID, e.Reason, e.Status, e.Owner)
	}
	return fmt.Sprintf("claim conflict on task %s: %s (status %s)", e.TaskID, e.Reason, e.Status)
}

// NotOwnerError is returned when an agent acts on a task it does not own.
type NotOwnerError struct {
	TaskID  string
	Owner   string
	AgentID string
}

func (e *NotOwnerError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("task %s is not owned, agent %s cannot act on it", e.TaskID, e.AgentID)
	}
	return fmt.Sprintf("task %s is owned by %s, not %s", e.TaskID, e.Owner, e.AgentID)
}

// ValidationFailedError is returned when a completion is rejected by the
// validation pipeline. The full report is attached; the task keeps its
// pre-validation status.
type ValidationFailedError struct {
	TaskID string
	Report models.ValidationReport
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("task %s failed validation: %d failure(s)", e.TaskID, len(e.Report.Failures))
}

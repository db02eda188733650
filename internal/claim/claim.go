// Package claim enforces exclusive task ownership across concurrent agent
// processes. A claim is a single optimistic transaction on the task store:
// read, verify preconditions, write with a version check. Losing the check
// means another agent won; the bounded retry keeps contention from turning
// into a busy loop, and a claim that goes stale is lazily reaped on access.
package claim

import (
	"context"
	"errors"
	"time"

	"github.com/corralhq/corral/internal/audit"
	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/internal/store"
	"github.com/corralhq/corral/internal/validation"
	"github.com/corralhq/corral/pkg/models"
)

// Coordinator serializes task ownership through the store's optimistic writes.
type Coordinator struct {
	store    *store.Store
	audit    audit.Recorder
	settings config.ClaimSettings

	// now is swappable for staleness tests.
	now func() time.Time
}

// New creates a Coordinator. A nil recorder disables auditing.
func New(s *store.Store, rec audit.Recorder, settings config.ClaimSettings) *Coordinator {
	if rec == nil {
		rec = audit.Nop{}
	}
	if settings.MaxRetries < 1 {
		settings.MaxRetries = 1
	}
	return &Coordinator{
		store:    s,
		audit:    rec,
		settings: settings,
		now:      time.Now,
	}
}

// retryUpdate runs the read-verify-write cycle, retrying store conflicts up
// to the configured bound. Typed precondition errors abort immediately; the
// caller is expected to pick different work rather than spin.
func (c *Coordinator) retryUpdate(id string, mutate func(*models.Task) error) (*models.Task, error) {
	var lastErr error
	for attempt := 0; attempt < c.settings.MaxRetries; attempt++ {
		if attempt > 0 && c.settings.RetryBackoff > 0 {
			time.Sleep(c.settings.RetryBackoff)
		}
		t, err := c.store.UpdateTask(id, mutate)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, &ConflictError{TaskID: id, Reason: "retries exhausted: " + lastErr.Error()}
}

// Claim takes exclusive ownership of a ready task for agentID. Preconditions:
// the task exists, is ready, is unowned, its session is open, and every
// dependency is done. Two
// concurrent claims resolve to exactly one winner; the loser gets a
// ConflictError and never observes a state where it owns the task.
func (c *Coordinator) Claim(taskID, agentID string) (*models.Task, error) {
	t, err := c.retryUpdate(taskID, func(t *models.Task) error {
		if t.Status != models.TaskStatusReady {
			return &ConflictError{TaskID: taskID, Owner: t.Owner, Status: t.Status, Reason: "task is not ready"}
		}
		if t.Owner != "" {
			return &ConflictError{TaskID: taskID, Owner: t.Owner, Status: t.Status, Reason: "task is already owned"}
		}
		// A closing session is draining; new claims would keep it from
		// ever closing. A missing session record is a weak reference and
		// does not block.
		sess, err := c.store.GetSession(t.SessionID)
		if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			return err
		}
		if err == nil && sess.Status != models.SessionOpen {
			return &ConflictError{TaskID: taskID, Status: t.Status, Reason: "session " + sess.ID + " is " + string(sess.Status)}
		}
		ok, err := c.store.DepsSatisfied(t)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{TaskID: taskID, Status: t.Status, Reason: "dependencies not done"}
		}

		t.Status = models.TaskStatusClaimed
		t.Owner = agentID
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(audit.Event{Kind: audit.KindClaim, TaskID: taskID, SessionID: t.SessionID, AgentID: agentID})
	return t, nil
}

// Start moves a claimed task to in_progress. Only the owner may start it.
func (c *Coordinator) Start(taskID, agentID string) (*models.Task, error) {
	t, err := c.retryUpdate(taskID, func(t *models.Task) error {
		if t.Owner != agentID {
			return &NotOwnerError{TaskID: taskID, Owner: t.Owner, AgentID: agentID}
		}
		if t.Status != models.TaskStatusClaimed {
			return &ConflictError{TaskID: taskID, Owner: t.Owner, Status: t.Status, Reason: "task is not claimed"}
		}
		t.Status = models.TaskStatusInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(audit.Event{Kind: audit.KindStart, TaskID: taskID, SessionID: t.SessionID, AgentID: agentID})
	return t, nil
}

// Heartbeat refreshes a claim's updated timestamp so the staleness reaper
// leaves it alone. Only the owner may heartbeat.
func (c *Coordinator) Heartbeat(taskID, agentID string) (*models.Task, error) {
	return c.retryUpdate(taskID, func(t *models.Task) error {
		if t.Owner != agentID {
			return &NotOwnerError{TaskID: taskID, Owner: t.Owner, AgentID: agentID}
		}
		if !t.Status.Owned() {
			return &ConflictError{TaskID: taskID, Status: t.Status, Reason: "task is not held"}
		}
		// The store bumps UpdatedAt on every write; nothing else changes.
		return nil
	})
}

// Release gives up ownership and resets the task to ready. Fails with
// NotOwnerError, without mutating, if agentID does not hold the claim.
func (c *Coordinator) Release(taskID, agentID string) (*models.Task, error) {
	t, err := c.retryUpdate(taskID, func(t *models.Task) error {
		if t.Owner != agentID {
			return &NotOwnerError{TaskID: taskID, Owner: t.Owner, AgentID: agentID}
		}
		t.Status = models.TaskStatusReady
		t.Owner = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(audit.Event{Kind: audit.KindRelease, TaskID: taskID, SessionID: t.SessionID, AgentID: agentID})
	return t, nil
}

// Complete runs the task's validation pipeline and, if it passes and every
// dependency is done, transitions the task to done. On validation failure the
// task keeps its status, the report is persisted for inspection, and a
// ValidationFailedError carrying the full failure list is returned.
func (c *Coordinator) Complete(ctx context.Context, taskID, agentID string, pipeline *validation.Pipeline) (*models.Task, error) {
	current, err := c.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if current.Owner != agentID {
		return nil, &NotOwnerError{TaskID: taskID, Owner: current.Owner, AgentID: agentID}
	}
	if !current.Status.Owned() {
		return nil, &ConflictError{TaskID: taskID, Status: current.Status, Reason: "task is not held"}
	}

	report := pipeline.Run(ctx, current)

	t, err := c.retryUpdate(taskID, func(t *models.Task) error {
		if t.Owner != agentID {
			return &NotOwnerError{TaskID: taskID, Owner: t.Owner, AgentID: agentID}
		}
		t.LastValidation = &report
		if !report.Passed {
			// Status unchanged; the report is the only mutation.
			return nil
		}

		ok, err := c.store.DepsSatisfied(t)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{TaskID: taskID, Status: t.Status, Reason: "dependencies not done"}
		}

		now := c.now().UTC()
		t.Status = models.TaskStatusDone
		t.Owner = ""
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Passed {
		return t, &ValidationFailedError{TaskID: taskID, Report: report}
	}

	c.audit.Record(audit.Event{Kind: audit.KindComplete, TaskID: taskID, SessionID: t.SessionID, AgentID: agentID})
	return t, nil
}

// Fail marks a held task as failed with the given reason. Only the owner may
// fail it.
func (c *Coordinator) Fail(taskID, agentID, reason string) (*models.Task, error) {
	t, err := c.retryUpdate(taskID, func(t *models.Task) error {
		if t.Owner != agentID {
			return &NotOwnerError{TaskID: taskID, Owner: t.Owner, AgentID: agentID}
		}
		if !t.Status.Owned() {
			return &ConflictError{TaskID: taskID, Status: t.Status, Reason: "task is not held"}
		}
		t.Status = models.TaskStatusFailed
		t.Owner = ""
		t.Error = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(audit.Event{Kind: audit.KindFail, TaskID: taskID, SessionID: t.SessionID, AgentID: agentID, Detail: reason})
	return t, nil
}

// Reaped describes a forced release performed by ReapStale.
type Reaped struct {
	TaskID    string
	PrevOwner string
	IdleFor   time.Duration
}

// ReapStale force-releases claims older than the configured staleness window.
// This is crash recovery, not a normal release: the previous owner is recorded
// for audit. Staleness is checked lazily by whoever calls this; no background
// thread is needed because the store is the single source of truth. An empty
// sessionID reaps across all sessions.
func (c *Coordinator) ReapStale(sessionID string) ([]Reaped, error) {
	tasks, err := c.store.ListTasks(store.TaskFilter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	var reaped []Reaped
	for _, t := range tasks {
		if !t.Status.Owned() {
			continue
		}
		idle := c.now().Sub(t.UpdatedAt)
		if idle < c.settings.StaleAfter {
			continue
		}

		prevOwner := t.Owner
		updated, err := c.retryUpdate(t.ID, func(t *models.Task) error {
			// Re-check inside the transaction: a heartbeat may have
			// landed since the list.
			if !t.Status.Owned() || c.now().Sub(t.UpdatedAt) < c.settings.StaleAfter {
				return &ConflictError{TaskID: t.ID, Status: t.Status, Reason: "claim no longer stale"}
			}
			t.Status = models.TaskStatusReady
			t.Owner = ""
			return nil
		})
		if err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return reaped, err
		}

		c.audit.Record(audit.Event{
			Kind:      audit.KindForcedRelease,
			TaskID:    updated.ID,
			SessionID: updated.SessionID,
			PrevOwner: prevOwner,
			Detail:    "stale claim reaped after " + idle.Truncate(time.Second).String(),
		})
		reaped = append(reaped, Reaped{TaskID: updated.ID, PrevOwner: prevOwner, IdleFor: idle})
	}

	return reaped, nil
}

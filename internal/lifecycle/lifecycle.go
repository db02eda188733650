// Package lifecycle drives session state transitions over the task store.
// NoReadyTask and SessionBusy are expected control-flow signals, not failures;
// store conflicts are retried with the same bounded policy as claiming, and
// everything else is fatal for the invocation.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/corralhq/corral/internal/audit"
	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/internal/store"
	"github.com/corralhq/corral/pkg/models"
)

// ErrNoReadyTask signals that no task in the session is currently claimable.
// A task blocked only by dependencies is pending, not exhausted; it will
// qualify once its dependencies are done.
var ErrNoReadyTask = errors.New("no ready task")

// SessionBusyError signals that a close is pending on tasks that are still
// held. The session stays in closing; callers may poll or wait.
type SessionBusyError struct {
	SessionID string
	HeldTasks []string
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("session %s has %d task(s) still held", e.SessionID, len(e.HeldTasks))
}

// Manager drives session lifecycle operations.
type Manager struct {
	store    *store.Store
	audit    audit.Recorder
	settings config.ClaimSettings
}

// New creates a Manager. A nil recorder disables auditing.
func New(s *store.Store, rec audit.Recorder, settings config.ClaimSettings) *Manager {
	if rec == nil {
		rec = audit.Nop{}
	}
	if settings.MaxRetries < 1 {
		settings.MaxRetries = 1
	}
	return &Manager{store: s, audit: rec, settings: settings}
}

// retrySession retries session updates on store conflicts with the bounded
// claim policy.
func (m *Manager) retrySession(id string, mutate func(*models.Session) error) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt < m.settings.MaxRetries; attempt++ {
		if attempt > 0 && m.settings.RetryBackoff > 0 {
			time.Sleep(m.settings.RetryBackoff)
		}
		sess, err := m.store.UpdateSession(id, mutate)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update session %s: %w", id, lastErr)
}

// AddTask registers a task in an open session and creates its record. The
// session reference is appended first, with the bounded retry policy: a
// crash between the two writes leaves at worst a dangling id, which readers
// already skip, never a task no session references.
func (m *Manager) AddTask(t *models.Task) (*models.Task, error) {
	if _, err := m.retrySession(t.SessionID, func(s *models.Session) error {
		if s.Status != models.SessionOpen {
			return fmt.Errorf("session %s is %s, tasks can only be added while open", s.ID, s.Status)
		}
		s.TaskIDs = append(s.TaskIDs, t.ID)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := m.store.CreateTask(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Next returns the earliest-ordered task in the session that is ready with
// every dependency done, without claiming it. Deleted task ids are skipped.
func (m *Manager) Next(sessionID string) (*models.Task, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	for _, taskID := range sess.TaskIDs {
		t, err := m.store.GetTask(taskID)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		if t.Status != models.TaskStatusReady {
			continue
		}
		ok, err := m.store.DepsSatisfied(t)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}

	return nil, fmt.Errorf("session %s: %w", sessionID, ErrNoReadyTask)
}

// Status aggregates a session's task counts by status.
type Status struct {
	// Session is the current session record.
	Session *models.Session
	// Counts maps task status to the number of tasks in it.
	Counts map[models.TaskStatus]int
	// Missing lists task ids whose records no longer exist.
	Missing []string
	// Held is the number of claimed or in_progress tasks.
	Held int
	// CloseEligible is true when the blocking invariant would let a close
	// reach closed right now.
	CloseEligible bool
}

// Status reports the session's aggregate state, consistent with the blocking
// invariant: the session can reach closed only when no task is held.
func (m *Manager) Status(sessionID string) (*Status, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Session: sess,
		Counts:  make(map[models.TaskStatus]int),
	}

	for _, taskID := range sess.TaskIDs {
		t, err := m.store.GetTask(taskID)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				st.Missing = append(st.Missing, taskID)
				continue
			}
			return nil, err
		}
		st.Counts[t.Status]++
		if t.Status.Owned() {
			st.Held++
		}
	}

	st.CloseEligible = st.Held == 0
	return st, nil
}

// Close requests session shutdown. open moves to closing immediately and
// never reverts; closing moves to closed only once no contained task is
// claimed or in_progress, otherwise SessionBusyError is returned with the
// session left in closing.
func (m *Manager) Close(sessionID string) (*models.Session, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionClosed {
		return sess, nil
	}

	if sess.Status == models.SessionOpen {
		sess, err = m.retrySession(sessionID, func(s *models.Session) error {
			if s.Status == models.SessionOpen {
				s.Status = models.SessionClosing
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	held, err := m.heldTasks(sess)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 {
		return sess, &SessionBusyError{SessionID: sessionID, HeldTasks: held}
	}

	sess, err = m.retrySession(sessionID, func(s *models.Session) error {
		if s.Status == models.SessionClosed {
			return nil
		}
		// Re-check under the record lock; a claim may have landed since.
		held, err := m.heldTasks(s)
		if err != nil {
			return err
		}
		if len(held) > 0 {
			return &SessionBusyError{SessionID: sessionID, HeldTasks: held}
		}
		now := time.Now().UTC()
		s.Status = models.SessionClosed
		s.ClosedAt = &now
		return nil
	})
	if err != nil {
		var busy *SessionBusyError
		if errors.As(err, &busy) {
			current, getErr := m.store.GetSession(sessionID)
			if getErr != nil {
				return nil, getErr
			}
			return current, busy
		}
		return nil, err
	}

	m.audit.Record(audit.Event{Kind: audit.KindSessionClose, SessionID: sessionID})
	return sess, nil
}

// heldTasks returns ids of the session's tasks that are claimed or
// in_progress. Deleted ids are skipped: weak references never block a close.
func (m *Manager) heldTasks(sess *models.Session) ([]string, error) {
	var held []string
	for _, taskID := range sess.TaskIDs {
		t, err := m.store.GetTask(taskID)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		if t.Status.Owned() {
			held = append(held, taskID)
		}
	}
	return held, nil
}

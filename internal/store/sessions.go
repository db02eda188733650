package store

import (
	"fmt"
	"time"

	"github.com/corralhq/corral/pkg/models"
)

// CreateSession writes a new session record. The id must not exist yet.
func (s *Store) CreateSession(sess *models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("create session: empty id")
	}
	if sess.Status == "" {
		sess.Status = models.SessionOpen
	}
	if !sess.Status.Valid() {
		return fmt.Errorf("create session %s: invalid status %q", sess.ID, sess.Status)
	}

	return withLock(s.sessionsDir, sess.ID, func() error {
		if exists(recordPath(s.sessionsDir, sess.ID)) {
			return fmt.Errorf("session %s: %w", sess.ID, ErrDuplicateSession)
		}
		sess.Version = 1
		sess.CreatedAt = time.Now().UTC()
		return writeRecord(s.sessionsDir, sess.ID, sess)
	})
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	if err := readRecord(s.sessionsDir, id, &sess, ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions, optionally filtered by status, ordered
// by id.
func (s *Store) ListSessions(status models.SessionStatus) ([]*models.Session, error) {
	ids, err := listIDs(s.sessionsDir)
	if err != nil {
		return nil, err
	}

	var sessions []*models.Session
	for _, id := range ids {
		sess, err := s.GetSession(id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if status != "" && sess.Status != status {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// UpdateSession applies mutate to the current record and writes the result
// with the version bumped, under the same lock-and-version discipline as
// UpdateTask.
func (s *Store) UpdateSession(id string, mutate func(*models.Session) error) (*models.Session, error) {
	var updated *models.Session
	err := withLock(s.sessionsDir, id, func() error {
		var sess models.Session
		if err := readRecord(s.sessionsDir, id, &sess, ErrSessionNotFound); err != nil {
			return err
		}
		readVersion := sess.Version

		if err := mutate(&sess); err != nil {
			return err
		}
		if !sess.Status.Valid() {
			return fmt.Errorf("update session %s: invalid status %q", id, sess.Status)
		}
		if sess.Version != readVersion {
			return fmt.Errorf("update session %s: version changed under read: %w", id, ErrConflict)
		}

		sess.Version++
		if err := writeRecord(s.sessionsDir, id, &sess); err != nil {
			return err
		}
		updated = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSession removes a session record.
func (s *Store) DeleteSession(id string) error {
	return deleteRecord(s.sessionsDir, id, ErrSessionNotFound)
}

// SessionsDir exposes the sessions record directory for watchers.
func (s *Store) SessionsDir() string {
	return s.sessionsDir
}

// TasksDir exposes the tasks record directory for watchers.
func (s *Store) TasksDir() string {
	return s.tasksDir
}

package store

import (
	"fmt"
	"time"

	"github.com/corralhq/corral/pkg/models"
)

// TaskFilter selects tasks for listing. Zero values match everything.
type TaskFilter struct {
	SessionID string
	Status    models.TaskStatus
	Owner     string
}

func (f TaskFilter) matches(t *models.Task) bool {
	if f.SessionID != "" && t.SessionID != f.SessionID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Owner != "" && t.Owner != f.Owner {
		return false
	}
	return true
}

// CreateTask writes a new task record. The id must not exist yet. The store
// stamps version 1 and the created/updated timestamps.
func (s *Store) CreateTask(t *models.Task) error {
	if t.ID == "" {
		return fmt.Errorf("create task: empty id")
	}
	if t.Status == "" {
		t.Status = models.TaskStatusReady
	}
	if !t.Status.Valid() {
		return fmt.Errorf("create task %s: invalid status %q", t.ID, t.Status)
	}
	if !t.OwnerConsistent() {
		return fmt.Errorf("create task %s: owner %q inconsistent with status %q", t.ID, t.Owner, t.Status)
	}

	return withLock(s.tasksDir, t.ID, func() error {
		if exists(recordPath(s.tasksDir, t.ID)) {
			return fmt.Errorf("task %s: %w", t.ID, ErrDuplicateTask)
		}
		now := time.Now().UTC()
		t.Version = 1
		t.CreatedAt = now
		t.UpdatedAt = now
		return writeRecord(s.tasksDir, t.ID, t)
	})
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(id string) (*models.Task, error) {
	var t models.Task
	if err := readRecord(s.tasksDir, id, &t, ErrTaskNotFound); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns tasks matching the filter, ordered by id.
func (s *Store) ListTasks(filter TaskFilter) ([]*models.Task, error) {
	ids, err := listIDs(s.tasksDir)
	if err != nil {
		return nil, err
	}

	var tasks []*models.Task
	for _, id := range ids {
		t, err := s.GetTask(id)
		if err != nil {
			// A record deleted between listing and reading is not an error.
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if filter.matches(t) {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// UpdateTask applies mutate to the current record and writes the result with
// the version bumped. The read happens under the record lock, so the write
// commits against exactly the state mutate saw; contention surfaces as
// ErrConflict. A mutate error aborts without writing.
func (s *Store) UpdateTask(id string, mutate func(*models.Task) error) (*models.Task, error) {
	var updated *models.Task
	err := withLock(s.tasksDir, id, func() error {
		var t models.Task
		if err := readRecord(s.tasksDir, id, &t, ErrTaskNotFound); err != nil {
			return err
		}
		readVersion := t.Version

		if err := mutate(&t); err != nil {
			return err
		}
		if !t.Status.Valid() {
			return fmt.Errorf("update task %s: invalid status %q", id, t.Status)
		}
		if !t.OwnerConsistent() {
			return fmt.Errorf("update task %s: owner %q inconsistent with status %q", id, t.Owner, t.Status)
		}
		if t.Version != readVersion {
			return fmt.Errorf("update task %s: version changed under read: %w", id, ErrConflict)
		}

		t.Version++
		t.UpdatedAt = time.Now().UTC()
		if err := writeRecord(s.tasksDir, id, &t); err != nil {
			return err
		}
		updated = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task record. Session task lists keep the id as a
// dangling weak reference.
func (s *Store) DeleteTask(id string) error {
	return deleteRecord(s.tasksDir, id, ErrTaskNotFound)
}

// DepsSatisfied reports whether every dependency of t is done. A dependency
// whose record is missing counts as unsatisfied.
func (s *Store) DepsSatisfied(t *models.Task) (bool, error) {
	for _, depID := range t.DependsOn {
		dep, err := s.GetTask(depID)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if dep.Status != models.TaskStatusDone {
			return false, nil
		}
	}
	return true, nil
}

package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/pkg/models"
)

// setupStore creates a Store rooted in a temp project directory.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dir := &config.Dir{Path: t.TempDir(), Source: config.SourceFlag}
	s, err := New(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func readyTask(id string) *models.Task {
	return &models.Task{
		ID:        id,
		SessionID: "s1",
		Title:     "task " + id,
		Status:    models.TaskStatusReady,
	}
}

func TestCreateTask_StampsRecord(t *testing.T) {
	s := setupStore(t)

	task := readyTask("t1")
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestCreateTask_Duplicate(t *testing.T) {
	s := setupStore(t)

	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := s.CreateTask(readyTask("t1"))
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestCreateTask_RejectsInconsistentOwner(t *testing.T) {
	s := setupStore(t)

	task := readyTask("t1")
	task.Owner = "agent-a" // ready tasks cannot have an owner
	if err := s.CreateTask(task); err == nil {
		t.Error("expected error for owner on ready task, got nil")
	}

	held := readyTask("t2")
	held.Status = models.TaskStatusClaimed // claimed requires an owner
	if err := s.CreateTask(held); err == nil {
		t.Error("expected error for claimed task without owner, got nil")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.GetTask("missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestUpdateTask_BumpsVersion(t *testing.T) {
	s := setupStore(t)
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.UpdateTask("t1", func(task *models.Task) error {
		task.Title = "renamed"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if updated.Title != "renamed" {
		t.Errorf("Title = %q, want %q", updated.Title, "renamed")
	}
}

func TestUpdateTask_MutateErrorAborts(t *testing.T) {
	s := setupStore(t)
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.UpdateTask("t1", func(task *models.Task) error {
		task.Title = "should not persist"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	got, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title == "should not persist" {
		t.Error("aborted mutation was persisted")
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1 after aborted mutation", got.Version)
	}
}

func TestUpdateTask_HeldLockIsConflict(t *testing.T) {
	s := setupStore(t)
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Simulate another process inside its read-check-rename window.
	lock := lockPath(s.tasksDir, "t1")
	if err := os.WriteFile(lock, nil, 0644); err != nil {
		t.Fatalf("plant lock: %v", err)
	}
	defer os.Remove(lock)

	_, err := s.UpdateTask("t1", func(task *models.Task) error { return nil })
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict while lock held, got %v", err)
	}
}

func TestUpdateTask_StealsAbandonedLock(t *testing.T) {
	s := setupStore(t)
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A lock left behind by a crashed writer: old enough that no live
	// holder can still be inside its window.
	lock := lockPath(s.tasksDir, "t1")
	if err := os.WriteFile(lock, nil, 0644); err != nil {
		t.Fatalf("plant lock: %v", err)
	}
	stale := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lock, stale, stale); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	updated, err := s.UpdateTask("t1", func(task *models.Task) error {
		task.Title = "recovered"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTask did not recover from abandoned lock: %v", err)
	}
	if updated.Title != "recovered" {
		t.Errorf("Title = %q, want %q", updated.Title, "recovered")
	}
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Error("abandoned lock file still present after steal")
	}
}

func TestUpdateTask_NoTornRecords(t *testing.T) {
	s := setupStore(t)
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := s.UpdateTask("t1", func(task *models.Task) error {
			task.Description = strings.Repeat("x", 1000)
			return nil
		}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	// No temp files should survive a completed write.
	entries, err := os.ReadDir(s.tasksDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestDeleteTask(t *testing.T) {
	s := setupStore(t)
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.DeleteTask("t1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := s.GetTask("t1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound after delete, got %v", err)
	}
	if err := s.DeleteTask("t1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on double delete, got %v", err)
	}
}

func TestListTasks_Filter(t *testing.T) {
	s := setupStore(t)
	a := readyTask("a")
	b := readyTask("b")
	b.SessionID = "s2"
	c := readyTask("c")
	c.Status = models.TaskStatusDone
	for _, task := range []*models.Task{a, b, c} {
		if err := s.CreateTask(task); err != nil {
			t.Fatalf("create %s: %v", task.ID, err)
		}
	}

	got, err := s.ListTasks(TaskFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("ids = %s, %s; want a, c", got[0].ID, got[1].ID)
	}

	got, err = s.ListTasks(TaskFilter{Status: models.TaskStatusReady})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ready count = %d, want 2", len(got))
	}
}

func TestDepsSatisfied(t *testing.T) {
	s := setupStore(t)
	dep := readyTask("dep")
	if err := s.CreateTask(dep); err != nil {
		t.Fatalf("create dep: %v", err)
	}
	task := readyTask("t1")
	task.DependsOn = []string{"dep"}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	ok, err := s.DepsSatisfied(task)
	if err != nil {
		t.Fatalf("DepsSatisfied failed: %v", err)
	}
	if ok {
		t.Error("deps satisfied while dep not done")
	}

	if _, err := s.UpdateTask("dep", func(d *models.Task) error {
		d.Status = models.TaskStatusDone
		return nil
	}); err != nil {
		t.Fatalf("mark dep done: %v", err)
	}

	ok, err = s.DepsSatisfied(task)
	if err != nil {
		t.Fatalf("DepsSatisfied failed: %v", err)
	}
	if !ok {
		t.Error("deps not satisfied after dep done")
	}
}

func TestDepsSatisfied_MissingDep(t *testing.T) {
	s := setupStore(t)
	task := readyTask("t1")
	task.DependsOn = []string{"ghost"}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.DepsSatisfied(task)
	if err != nil {
		t.Fatalf("DepsSatisfied failed: %v", err)
	}
	if ok {
		t.Error("missing dependency counted as satisfied")
	}
}

func TestSessions_CRUD(t *testing.T) {
	s := setupStore(t)

	sess := &models.Session{ID: "s1", Status: models.SessionOpen, TaskIDs: []string{"a", "b"}}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.CreateSession(&models.Session{ID: "s1"}); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Version != 1 || len(got.TaskIDs) != 2 {
		t.Errorf("unexpected session record: %+v", got)
	}

	updated, err := s.UpdateSession("s1", func(sess *models.Session) error {
		sess.Status = models.SessionClosing
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Status != models.SessionClosing || updated.Version != 2 {
		t.Errorf("unexpected updated session: %+v", updated)
	}

	all, err := s.ListSessions("")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("session count = %d, want 1", len(all))
	}
}

func TestRecordPathLayout(t *testing.T) {
	dir := &config.Dir{Path: t.TempDir(), Source: config.SourceFlag}
	s, err := New(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := s.CreateTask(readyTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	want := filepath.Join(dir.TasksDir(), "t1.json")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("record not at %s: %v", want, err)
	}
}

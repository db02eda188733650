// Package store persists task and session records as one JSON file per record
// under the resolved config directory. Every mutation is a
// write-temp-then-rename so a crash never leaves a torn record, and the short
// read-check-rename window is serialized with a per-record lock file. The
// version stamp on each record is the optimistic-concurrency handle shared by
// every agent process; no in-process locking crosses agent boundaries.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/corralhq/corral/internal/config"
)

// Store reads and writes durable task and session records.
type Store struct {
	tasksDir    string
	sessionsDir string
}

// New creates a Store rooted at the resolved directory and ensures the record
// directories exist.
func New(dir *config.Dir) (*Store, error) {
	s := &Store{
		tasksDir:    dir.TasksDir(),
		sessionsDir: dir.SessionsDir(),
	}
	for _, d := range []string{s.tasksDir, s.sessionsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return s, nil
}

// recordPath returns the record file for an id within a record directory.
func recordPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// lockPath returns the lock file for a record.
func lockPath(dir, id string) string {
	return filepath.Join(dir, id+".lock")
}

// lockStaleAfter bounds how long a lock file is honored. A holder keeps the
// lock only across one read-check-rename window, so a lock this old belongs
// to a process that died before its deferred cleanup ran.
const lockStaleAfter = 30 * time.Second

// withLock runs fn while holding the per-record lock file. A held lock means
// another process is inside its own read-check-rename window; that is the
// conflict the bounded-retry policy exists for, so it surfaces as ErrConflict
// rather than blocking. A lock abandoned by a crashed process is stolen so
// the record stays mutable.
func withLock(dir, id string, fn func() error) error {
	lock := lockPath(dir, id)
	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil && os.IsExist(err) && stealAbandonedLock(lock) {
		f, err = os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	}
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("lock %s held: %w", id, ErrConflict)
		}
		return fmt.Errorf("acquire lock for %s: %w", id, err)
	}
	f.Close()
	defer os.Remove(lock)

	return fn()
}

// stealAbandonedLock removes a lock file whose holder is gone. Returns true
// when the caller should retry the acquire.
func stealAbandonedLock(lock string) bool {
	info, err := os.Stat(lock)
	if err != nil {
		// Released between the failed acquire and the stat.
		return os.IsNotExist(err)
	}
	if time.Since(info.ModTime()) < lockStaleAfter {
		return false
	}
	err = os.Remove(lock)
	return err == nil || os.IsNotExist(err)
}

// readRecord unmarshals a record file into out.
func readRecord(dir, id string, out any, notFound error) error {
	data, err := os.ReadFile(recordPath(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", id, notFound)
		}
		return fmt.Errorf("read record %s: %w", id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode record %s: %w", id, err)
	}
	return nil
}

// writeRecord marshals v and atomically replaces the record file.
func writeRecord(dir, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record for %s: %w", id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record for %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp record for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record for %s: %w", id, err)
	}

	if err := os.Rename(tmpName, recordPath(dir, id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record %s: %w", id, err)
	}
	return nil
}

// deleteRecord removes a record file under its lock.
func deleteRecord(dir, id string, notFound error) error {
	return withLock(dir, id, func() error {
		if err := os.Remove(recordPath(dir, id)); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%s: %w", id, notFound)
			}
			return fmt.Errorf("delete record %s: %w", id, err)
		}
		return nil
	})
}

// exists reports whether a path exists.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isNotFound reports whether err wraps a record-missing sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrSessionNotFound)
}

// listIDs returns the record ids present in a record directory, sorted.
func listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

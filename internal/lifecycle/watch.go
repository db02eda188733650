package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corralhq/corral/internal/store"
	"github.com/corralhq/corral/pkg/models"
)

// watchPollInterval is the fallback poll cadence for filesystems where
// fsnotify events are unreliable (network mounts, some containers).
const watchPollInterval = 2 * time.Second

// WaitClosed blocks until the session reaches closed, the context is
// canceled, or the session record disappears. It watches the session record
// directory for writes and polls as a fallback.
func (m *Manager) WaitClosed(ctx context.Context, sessionID string) (*models.Session, error) {
	check := func() (*models.Session, bool, error) {
		sess, err := m.store.GetSession(sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				return nil, false, fmt.Errorf("wait for session %s: %w", sessionID, err)
			}
			// Transient read races with a concurrent rename are retried.
			return nil, false, nil
		}
		return sess, sess.Status == models.SessionClosed, nil
	}

	if sess, done, err := check(); err != nil {
		return nil, err
	} else if done {
		return sess, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.store.SessionsDir()); err != nil {
		return nil, fmt.Errorf("watch sessions directory: %w", err)
	}

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, fmt.Errorf("watcher closed")
			}
			return nil, fmt.Errorf("watch sessions directory: %w", err)
		case <-watcher.Events:
		case <-ticker.C:
		}

		sess, done, err := check()
		if err != nil {
			return nil, err
		}
		if done {
			return sess, nil
		}
	}
}

// CloseWait drives a close to completion: it retries Close whenever a task
// record changes, until the session is closed or the context is canceled.
// Stale claims are reaped first by the caller; this only watches and retries.
func (m *Manager) CloseWait(ctx context.Context, sessionID string) (*models.Session, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.store.TasksDir()); err != nil {
		return nil, fmt.Errorf("watch tasks directory: %w", err)
	}

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		sess, err := m.Close(sessionID)
		if err == nil {
			return sess, nil
		}
		var busy *SessionBusyError
		if !errors.As(err, &busy) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, fmt.Errorf("watcher closed")
			}
			return nil, fmt.Errorf("watch tasks directory: %w", err)
		case <-watcher.Events:
		case <-ticker.C:
		}
	}
}

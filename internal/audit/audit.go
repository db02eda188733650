// Package audit provides an SQLite-backed audit trail for coordinator events:
// claims, releases, forced releases, completions and session transitions. The
// trail is observational; the JSON records in the store remain the single
// source of truth for coordination.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Kind classifies an audit event.
type Kind string

const (
	KindClaim         Kind = "claim"
	KindStart         Kind = "start"
	KindRelease       Kind = "release"
	KindForcedRelease Kind = "forced_release"
	KindComplete      Kind = "complete"
	KindFail          Kind = "fail"
	KindSessionClose  Kind = "session_close"
)

// Event is one recorded coordinator action.
type Event struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	TaskID    string    `json:"task_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	// PrevOwner is set on forced releases so an operator can see whose
	// stale claim was reaped.
	PrevOwner string    `json:"prev_owner,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder accepts audit events. The nop implementation is used when auditing
// is disabled.
type Recorder interface {
	Record(ev Event) error
}

// Nop is a Recorder that discards events.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Event) error { return nil }

// Log wraps an SQLite connection holding the audit trail.
type Log struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

var _ Recorder = (*Log)(nil)

// Open opens the audit database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent readers.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &Log{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Close()
}

// Path returns the path to the audit database file.
func (l *Log) Path() string {
	return l.path
}

// Migrate applies all pending schema migrations.
func (l *Log) Migrate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	row := l.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Events},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := l.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Events = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	task_id TEXT,
	session_id TEXT,
	agent_id TEXT,
	prev_owner TEXT,
	detail TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// Record appends an event to the trail.
func (l *Log) Record(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := l.conn.Exec(`
		INSERT INTO events (kind, task_id, session_id, agent_id, prev_owner, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(ev.Kind), ev.TaskID, ev.SessionID, ev.AgentID, ev.PrevOwner, ev.Detail, formatTime(created))
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// List returns the most recent events, newest first.
func (l *Log) List(limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := l.conn.Query(`
		SELECT id, kind, task_id, session_id, agent_id, prev_owner, detail, created_at
		FROM events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var taskID, sessionID, agentID, prevOwner, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.Kind, &taskID, &sessionID, &agentID, &prevOwner, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.TaskID = taskID.String
		ev.SessionID = sessionID.String
		ev.AgentID = agentID.String
		ev.PrevOwner = prevOwner.String
		ev.Detail = detail.String
		ev.CreatedAt, _ = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes events older than the retention window. Returns the number of
// rows removed.
func (l *Log) Prune(olderThan time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := formatTime(time.Now().UTC().Add(-olderThan))
	result, err := l.conn.Exec("DELETE FROM events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

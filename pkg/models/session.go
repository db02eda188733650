package models

import "time"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	// SessionOpen indicates the session is accepting work.
	SessionOpen SessionStatus = "open"
	// SessionClosing indicates a close was requested but tasks are still owned.
	SessionClosing SessionStatus = "closing"
	// SessionClosed indicates the session is finished.
	SessionClosed SessionStatus = "closed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionOpen, SessionClosing, SessionClosed:
		return true
	default:
		return false
	}
}

// Session is an ordered grouping of tasks with its own lifecycle.
//
// TaskIDs are weak references: deleting a task does not remove it from the
// list, and closing skips ids with no backing record.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Title is the short description of the session.
	Title string `json:"title,omitempty"`
	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`
	// TaskIDs is the ordered list of task references in this session.
	TaskIDs []string `json:"task_ids"`
	// Version is the monotonic stamp used for optimistic concurrency.
	Version int64 `json:"version"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// ClosedAt is when the session reached closed, if it has.
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

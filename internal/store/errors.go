package store

import "errors"

// ErrConflict is the optimistic-lock failure: a record changed, or its lock
// was held, between read and write. Callers retry with a bounded policy.
var ErrConflict = errors.New("record conflict")

// ErrTaskNotFound is returned when a task id has no backing record.
var ErrTaskNotFound = errors.New("task not found")

// ErrSessionNotFound is returned when a session id has no backing record.
var ErrSessionNotFound = errors.New("session not found")

// ErrDuplicateTask is returned when creating a task whose id already exists.
var ErrDuplicateTask = errors.New("task already exists")

// ErrDuplicateSession is returned when creating a session whose id already exists.
var ErrDuplicateSession = errors.New("session already exists")

package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrPersist wraps any document store failure during a refresh or
	// recompute. The previous score record remains authoritative.
	ErrPersist = errors.New("persist failed")

	ErrUnknownStudent = errors.New("unknown student")
	ErrInvalidStudent = errors.New("invalid student id")
	ErrInvalidLimit   = errors.New("invalid limit")
	ErrNotStarted     = errors.New("service not started")
	ErrQueueFull      = errors.New("refresh queue full")
)

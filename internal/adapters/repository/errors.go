package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidLimit   = errors.New("invalid leaderboard limit")
	ErrInvalidStudent = errors.New("invalid student id")
	ErrInvalidRecord  = errors.New("invalid canonical record")
)

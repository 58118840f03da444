package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a thread, message or credential does not
	// exist or belongs to another owner.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record with the given ID already exists.
	ErrConflict = errors.New("already exists")

	// ErrInvalidTransition is returned when an update would move a message
	// out of a terminal state or backwards in its lifecycle.
	ErrInvalidTransition = errors.New("invalid message status transition")
)

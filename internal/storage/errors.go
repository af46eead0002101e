package storage

import "errors"

// Storage errors shared by all table stores.
var (
	// ErrNotFound is returned when a requested table does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorrupt is returned when persisted data exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt result store")
)

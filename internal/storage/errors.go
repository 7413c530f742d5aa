package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a series, snapshot or cursor has never been written.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a snapshot with the same
	// (entity_key, metric_kind, version) already exists. Snapshots are never updated.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

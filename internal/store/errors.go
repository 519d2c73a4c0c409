package store

import "errors"

var (
	// ErrStorageFailure wraps any database error raised while clearing or
	// loading a table. The table is unchanged when it is returned.
	ErrStorageFailure = errors.New("storage failure")

	ErrNotFound          = errors.New("not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

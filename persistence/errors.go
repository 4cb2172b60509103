package persistence

import "errors"

var (
	// ErrStoreRequired is returned when no document store is provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrPersistFailed wraps any failure inside the persist transaction.
	ErrPersistFailed = errors.New("persist failed")
)

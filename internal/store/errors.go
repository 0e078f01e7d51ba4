package store

import "errors"

// Domain-specific errors for the store package.
var (
	// ErrEmptyKey is returned when a KV operation is given an empty key.
	ErrEmptyKey = errors.New("store: empty key")

	// ErrEmptyName is returned when a credential has no network name.
	ErrEmptyName = errors.New("store: empty network name")
)

package notify

import "errors"

// Domain-specific errors for the notify package.
var (
	// ErrEffectPanic is reported to the run callback when an effect panics.
	ErrEffectPanic = errors.New("notify: effect panicked")
)

package messaging

import "errors"

// Domain-specific errors for the messaging runtime.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConfig is returned when a required field (host, principal, topic) is empty.
	ErrInvalidConfig = errors.New("messaging: invalid configuration")

	// ErrNotConfigured is returned by Start/Resume before a host has been configured.
	ErrNotConfigured = errors.New("messaging: not configured")

	// ErrNotConnected is returned by Publish when no session exists.
	ErrNotConnected = errors.New("messaging: no active session")

	// ErrSessionOpen is returned when the transport cannot be created or started.
	ErrSessionOpen = errors.New("messaging: failed to open session")
)

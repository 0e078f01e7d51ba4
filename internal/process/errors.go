package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the daemon is up.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNoBinary is returned when Config.Binary is empty.
	ErrNoBinary = errors.New("process: no binary configured")

	// ErrNotReady is returned by Start when the readiness probe never passed.
	ErrNotReady = errors.New("process: daemon not ready")
)

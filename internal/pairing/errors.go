package pairing

import "errors"

var (
	// ErrDisabled is returned when no bridge binary is configured.
	ErrDisabled = errors.New("pairing: channel disabled")

	// ErrNoSession is returned by EndSession when no session is open.
	ErrNoSession = errors.New("pairing: no session open")
)

package wlan

import "errors"

var (
	// ErrNotStarted is returned by commands issued before Start.
	ErrNotStarted = errors.New("wlan: supplicant not started")

	// ErrInvalidNetwork is returned by SetConfig for SSIDs or passphrases
	// wpa_supplicant cannot represent.
	ErrInvalidNetwork = errors.New("wlan: invalid network configuration")

	// ErrCommandFailed is returned when wpa_cli answers FAIL.
	ErrCommandFailed = errors.New("wlan: control command failed")
)

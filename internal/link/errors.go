package link

import "errors"

// Domain-specific errors for the link layer.
var (
	// ErrNoConfiguration is returned when ConfigureAndConnect has no SSID to use.
	ErrNoConfiguration = errors.New("link: no station configuration")

	// ErrNoSavedNetworks is returned by ConnectToAnySaved when the credential table is empty.
	ErrNoSavedNetworks = errors.New("link: no saved networks")

	// ErrAllCandidatesFailed is returned by ConnectToAnySaved when no saved network connected.
	ErrAllCandidatesFailed = errors.New("link: all saved networks failed")

	// ErrRadio wraps errors reported by the radio backend.
	ErrRadio = errors.New("link: radio error")

	// ErrPairingUnavailable is returned when no pairing channel is configured.
	ErrPairingUnavailable = errors.New("link: pairing channel unavailable")
)

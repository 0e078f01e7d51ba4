// Package link manages the device's Wi-Fi station link.
//
// Manager owns the connection state machine:
//
//	Disconnected -> Connecting -> Connected
//	                    |             |
//	                    +--> Failed <-+ (retry budget spent)
//
// Disconnects trigger up to MaxRetries automatic reconnects. Reconnects are
// suppressed while the link is being reconfigured, while the pairing
// fallback owns the radio, and while the user or the pairing channel has
// forced the link off.
//
// Fallback coordinates the station link with the pairing channel and the
// messaging session. When no saved network connects it pauses messaging,
// enables pairing, and retries the saved networks in the background until
// one connects. Boot runs the startup sequence.
//
// Persistent flags (forced-off, fallback, factory setup) live in the
// store.KV; see the store package for the key names.
package link

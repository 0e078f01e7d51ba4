// Package store persists the small amount of state the connectivity core
// needs across reboots.
//
// Two contracts are exposed:
//
//   - KV: flat string settings (pairing flags, manual-off, factory setup mode,
//     the messaging principal, the device id). A missing key reads as "".
//   - Credentials: a bounded table of at most MaxCredentials saved networks.
//     Saving a known name updates it in place; saving a new name once the
//     table is full replaces the oldest entry.
//
// Both have a SQLite implementation backed by internal/infrastructure/database
// and an in-memory implementation used by tests and by the daemon when it
// runs without a writable data directory.
//
// Key names are fixed strings shared with the pairing daemon, so they are
// kept short and must not be renamed.
package store

// Package api implements the device-local HTTP control API.
//
// This package provides:
//   - Station link status and (re)connect requests
//   - Messaging session control, publishing and listener queues
//   - Pairing session control
//   - Notification signalling
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Architecture
//
// The API is the polling surface for the on-device UI process. It holds no
// state of its own: every handler calls straight into the link manager,
// messaging runtime, pairing bridge or notification bridge. Queues are
// drained with the .../next endpoints, which answer 204 when empty.
//
// # Security
//
// The server binds to loopback by default and has no authentication; it
// is not meant to be reachable from the network.
package api

// Package messaging maintains the device's single broker session and
// demultiplexes inbound data by topic.
//
// # Topics and queues
//
// The primary topic is "chat/messages/<principal>". Data on it is queued and
// wakes the notification dispatcher. Listeners register further topics, each
// with its own FIFO queue and a monotonic id (starting at 1, never reused).
// Data on a listener topic goes to the first registration for that topic.
// Unmatched data is dropped. Queues drop their oldest entry once
// Options.QueueLimit is reached.
//
// # Lifecycle
//
//	Configure → Start ─(connected event)→ subscriptions issued
//	                 ↘ Pause/Stop: session destroyed, queues kept
//	                   Resume: new session from the last configuration
//
// Reconnection of the messaging session is caller-driven. Only the transport
// itself (paho) retries a dropped broker link while a session exists.
//
// # Events
//
// Transports report {connected, disconnected, data, error} through the sink
// given to the TransportFactory. Each session carries a generation number;
// events from a session that has been torn down are discarded.
package messaging

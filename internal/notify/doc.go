// Package notify turns "new data" signals into notification effects.
//
// A Dispatcher owns one worker goroutine. Signal wakes it without blocking;
// any signals that arrive before the worker runs are coalesced, so a burst
// of messages produces one effect run, not one per message. The worker is
// started lazily by the first Signal.
//
// Pattern is the default effect: three LED blinks with haptic pulses and a
// short fade. Bridge lets sources outside the messaging runtime raise the
// same notification.
package notify

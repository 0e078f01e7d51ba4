package notify

import "sync/atomic"

// Signaler is anything that can be woken for a notification.
type Signaler interface {
	Signal()
}

// Bridge raises notifications for messages that did not arrive through
// the messaging runtime, and remembers that one did so the unread view
// can refresh.
type Bridge struct {
	signaler Signaler
	hint     atomic.Bool
}

// NewBridge creates a bridge that signals s.
func NewBridge(s Signaler) *Bridge {
	return &Bridge{signaler: s}
}

// HandleExternalMessage records the unread hint and fires the effect.
func (b *Bridge) HandleExternalMessage() {
	b.hint.Store(true)
	b.signaler.Signal()
}

// ConsumeExternalHint reports whether an external message arrived since the
// last call, and clears the hint.
func (b *Bridge) ConsumeExternalHint() bool {
	return b.hint.Swap(false)
}

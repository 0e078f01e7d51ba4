package messaging

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Options holds the session settings that do not change between
// Configure calls.
type Options struct {
	ClientID  string
	Username  string
	Password  string
	TLS       bool
	KeepAlive time.Duration

	// QoS is used for subscriptions.
	QoS byte

	// QueueLimit bounds each queue; the oldest payload is dropped when full.
	// 0 means unbounded.
	QueueLimit int
}

type listener struct {
	id    int
	topic string
	queue *fifo
}

// Runtime owns one broker session and demultiplexes inbound data into a
// primary queue and per-listener queues.
//
// Pause tears the session down completely and Resume rebuilds it from the
// last configuration. Queued payloads survive both.
//
// Thread Safety:
//   - All methods are safe for concurrent use, including from transport
//     callbacks.
//   - Locks are never held across transport calls.
type Runtime struct {
	opts     Options
	factory  TransportFactory
	notifier Notifier

	// sessMu guards the session configuration and handle.
	sessMu       sync.Mutex
	cfg          SessionConfig
	primaryTopic string
	transport    Transport

	// generation identifies the current session; events carrying an older
	// generation come from a torn-down transport and are discarded.
	generation atomic.Uint64
	connected  atomic.Bool

	// mu guards the listener registry and every queue.
	mu        sync.Mutex
	primary   *fifo
	listeners []*listener
	lastID    int

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a runtime. notifier may be nil.
//
// Parameters:
//   - opts: Static session settings
//   - factory: Creates a transport for each Start/Resume
//   - notifier: Woken on primary-topic data
//
// Returns:
//   - *Runtime: Unconfigured, stopped runtime
func New(opts Options, factory TransportFactory, notifier Notifier) *Runtime {
	return &Runtime{
		opts:     opts,
		factory:  factory,
		notifier: notifier,
		primary:  newFIFO(opts.QueueLimit),
		logger:   noopLogger{},
	}
}

// PrimaryTopicFor returns the primary topic for a principal.
func PrimaryTopicFor(principalID string) string {
	if principalID == "" {
		return ""
	}
	return "chat/messages/" + principalID
}

// Configure stores the broker address and principal. A non-positive port
// means DefaultPort; an empty principal keeps the previous one. It does not
// affect a running session until the next Start.
func (r *Runtime) Configure(host string, port int, principalID string) error {
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidConfig)
	}
	if port <= 0 {
		port = DefaultPort
	}

	r.sessMu.Lock()
	defer r.sessMu.Unlock()

	r.cfg.Host = host
	r.cfg.Port = port
	if principalID != "" {
		r.cfg.PrincipalID = principalID
		r.primaryTopic = PrimaryTopicFor(principalID)
	}
	return nil
}

// Start opens a session if none exists. Connection completes asynchronously
// and is reported through the event path.
func (r *Runtime) Start() error {
	r.sessMu.Lock()
	if r.transport != nil {
		r.sessMu.Unlock()
		return nil
	}
	if r.cfg.Host == "" {
		r.sessMu.Unlock()
		return ErrNotConfigured
	}

	cfg := r.cfg
	cfg.ClientID = r.opts.ClientID
	cfg.Username = r.opts.Username
	cfg.Password = r.opts.Password
	cfg.TLS = r.opts.TLS
	cfg.KeepAlive = r.opts.KeepAlive

	gen := r.generation.Add(1)
	t, err := r.factory(cfg, func(ev Event) { r.dispatch(gen, ev) })
	if err != nil {
		r.sessMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSessionOpen, err)
	}
	r.transport = t
	r.sessMu.Unlock()

	if err := t.Connect(); err != nil {
		r.sessMu.Lock()
		if r.transport == t {
			r.transport = nil
			r.generation.Add(1)
		}
		r.sessMu.Unlock()
		t.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("%w: %w", ErrSessionOpen, err)
	}

	r.getLogger().Info("messaging session started", "broker", cfg.Address(), "principal", cfg.PrincipalID)
	return nil
}

// Resume is Start under the name used by the pause/resume callers.
func (r *Runtime) Resume() error {
	return r.Start()
}

// Stop tears the session down and clears the connected flag. Queued data is
// kept. Stop on a stopped runtime is a no-op.
func (r *Runtime) Stop() {
	r.sessMu.Lock()
	t := r.transport
	r.transport = nil
	r.generation.Add(1)
	r.connected.Store(false)
	r.sessMu.Unlock()

	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		r.getLogger().Warn("closing messaging session", "error", err)
	}
	r.getLogger().Info("messaging session stopped")
}

// Pause is Stop under the name used by the pause/resume callers.
func (r *Runtime) Pause() {
	r.Stop()
}

// UpdatePrincipal switches the primary topic. When connected, the new topic
// is subscribed immediately and the previous one is released.
func (r *Runtime) UpdatePrincipal(principalID string) error {
	if principalID == "" {
		return fmt.Errorf("%w: empty principal", ErrInvalidConfig)
	}

	r.sessMu.Lock()
	previous := r.primaryTopic
	r.cfg.PrincipalID = principalID
	r.primaryTopic = PrimaryTopicFor(principalID)
	topic := r.primaryTopic
	t := r.transport
	r.sessMu.Unlock()

	if t == nil || !r.connected.Load() {
		return nil
	}

	if previous != "" && previous != topic && !r.listenerHasTopic(previous) {
		if err := t.Unsubscribe(previous); err != nil {
			r.getLogger().Warn("unsubscribing previous primary topic", "topic", previous, "error", err)
		}
	}
	if err := t.Subscribe(topic, r.opts.QoS); err != nil {
		return fmt.Errorf("subscribing %s: %w", topic, err)
	}
	return nil
}

// AddListener registers topic and returns its id. Ids start at 1 and are
// never reused. When connected the topic is subscribed immediately; a
// failed subscribe is logged and retried on the next connect.
func (r *Runtime) AddListener(topic string) (int, error) {
	if topic == "" {
		return 0, fmt.Errorf("%w: empty topic", ErrInvalidConfig)
	}

	r.mu.Lock()
	r.lastID++
	id := r.lastID
	r.listeners = append(r.listeners, &listener{id: id, topic: topic, queue: newFIFO(r.opts.QueueLimit)})
	r.mu.Unlock()

	if t := r.connectedTransport(); t != nil {
		if err := t.Subscribe(topic, r.opts.QoS); err != nil {
			r.getLogger().Warn("subscribing listener topic", "id", id, "topic", topic, "error", err)
		}
	}
	return id, nil
}

// RemoveListener drops a registration and its queue. Unknown ids are
// ignored. The topic is unsubscribed only if nothing else still uses it.
func (r *Runtime) RemoveListener(id int) {
	r.mu.Lock()
	idx := -1
	for i, l := range r.listeners {
		if l.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	topic := r.listeners[idx].topic
	r.listeners = append(r.listeners[:idx], r.listeners[idx+1:]...)
	shared := r.hasTopicLocked(topic)
	r.mu.Unlock()

	if shared || topic == r.PrimaryTopic() {
		return
	}
	if t := r.connectedTransport(); t != nil {
		if err := t.Unsubscribe(topic); err != nil {
			r.getLogger().Warn("unsubscribing listener topic", "id", id, "topic", topic, "error", err)
		}
	}
}

// Publish forwards to the transport. It fails with ErrNotConnected when no
// session exists.
func (r *Runtime) Publish(topic string, payload []byte, qos byte, retain bool) error {
	r.sessMu.Lock()
	t := r.transport
	r.sessMu.Unlock()

	if t == nil {
		return ErrNotConnected
	}
	return t.Publish(topic, payload, qos, retain)
}

// PopPrimary dequeues the oldest primary-topic payload. ok is false when
// the queue is empty.
func (r *Runtime) PopPrimary() (payload string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.primary.pop()
	return string(b), ok
}

// PopListener dequeues the oldest payload for a listener. ok is false when
// the queue is empty or the id is unknown.
func (r *Runtime) PopListener(id int) (payload string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		if l.id == id {
			b, ok := l.queue.pop()
			return string(b), ok
		}
	}
	return "", false
}

// HandleEvent feeds an event for the current session. It is the entry
// point for transports that are not created through the factory, and for
// tests.
func (r *Runtime) HandleEvent(ev Event) {
	r.dispatch(r.generation.Load(), ev)
}

func (r *Runtime) dispatch(gen uint64, ev Event) {
	if gen != r.generation.Load() {
		r.getLogger().Debug("discarding event from closed session", "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case EventConnected:
		r.handleConnected(gen)
	case EventDisconnected:
		r.handleDisconnected(gen, ev.Err)
	case EventData:
		r.handleData(ev.Topic, ev.Payload)
	case EventError:
		r.getLogger().Warn("messaging transport error", "error", ev.Err)
	default:
		r.getLogger().Debug("ignoring unknown event", "kind", ev.Kind.String())
	}
}

func (r *Runtime) handleConnected(gen uint64) {
	// The flag is only raised for the session that is still current; Stop
	// clears it under the same lock.
	r.sessMu.Lock()
	t := r.transport
	primary := r.primaryTopic
	if t == nil || gen != r.generation.Load() {
		r.sessMu.Unlock()
		return
	}
	r.connected.Store(true)
	r.sessMu.Unlock()

	topics := make([]string, 0, 1)
	if primary != "" {
		topics = append(topics, primary)
	}
	seen := map[string]bool{primary: true}
	r.mu.Lock()
	for _, l := range r.listeners {
		if !seen[l.topic] {
			seen[l.topic] = true
			topics = append(topics, l.topic)
		}
	}
	r.mu.Unlock()

	for _, topic := range topics {
		if gen != r.generation.Load() {
			return
		}
		if err := t.Subscribe(topic, r.opts.QoS); err != nil {
			r.getLogger().Warn("subscribing on connect", "topic", topic, "error", err)
		}
	}
	r.getLogger().Info("messaging session connected", "subscriptions", len(topics))

	r.callbackMu.RLock()
	callback := r.onConnect
	r.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (r *Runtime) handleDisconnected(gen uint64, err error) {
	r.sessMu.Lock()
	if gen != r.generation.Load() {
		r.sessMu.Unlock()
		return
	}
	r.connected.Store(false)
	r.sessMu.Unlock()
	r.getLogger().Info("messaging session disconnected", "error", err)

	r.callbackMu.RLock()
	callback := r.onDisconnect
	r.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (r *Runtime) handleData(topic string, payload []byte) {
	primary := r.PrimaryTopic()

	r.mu.Lock()
	if primary != "" && topic == primary {
		r.primary.push(payload)
		r.mu.Unlock()
		if r.notifier != nil {
			r.notifier.Signal()
		}
		return
	}
	for _, l := range r.listeners {
		if l.topic == topic {
			l.queue.push(payload)
			r.mu.Unlock()
			return
		}
	}
	r.mu.Unlock()
	r.getLogger().Debug("dropping data for unmatched topic", "topic", topic)
}

// connectedTransport returns the session handle when connected, else nil.
func (r *Runtime) connectedTransport() Transport {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	if !r.connected.Load() {
		return nil
	}
	return r.transport
}

func (r *Runtime) listenerHasTopic(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasTopicLocked(topic)
}

func (r *Runtime) hasTopicLocked(topic string) bool {
	for _, l := range r.listeners {
		if l.topic == topic {
			return true
		}
	}
	return false
}

// IsRunning reports whether a session exists, connected or not.
func (r *Runtime) IsRunning() bool {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	return r.transport != nil
}

// IsConnected reports whether the current session is connected.
func (r *Runtime) IsConnected() bool {
	return r.connected.Load()
}

// PrimaryTopic returns the current primary topic ("" until a principal is set).
func (r *Runtime) PrimaryTopic() string {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	return r.primaryTopic
}

// Listeners returns the active registrations in registration order.
func (r *Runtime) Listeners() []ListenerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ListenerInfo, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, ListenerInfo{ID: l.id, Topic: l.topic, Pending: l.queue.len()})
	}
	return out
}

// Status returns a snapshot for reporting.
func (r *Runtime) Status() Status {
	r.sessMu.Lock()
	st := Status{
		Running:      r.transport != nil,
		Host:         r.cfg.Host,
		Port:         r.cfg.Port,
		PrincipalID:  r.cfg.PrincipalID,
		PrimaryTopic: r.primaryTopic,
	}
	r.sessMu.Unlock()
	st.Connected = r.connected.Load()

	r.mu.Lock()
	st.PrimaryPending = r.primary.len()
	st.Dropped = r.primary.dropped
	st.Listeners = make([]ListenerInfo, 0, len(r.listeners))
	for _, l := range r.listeners {
		st.Dropped += l.queue.dropped
		st.Listeners = append(st.Listeners, ListenerInfo{ID: l.id, Topic: l.topic, Pending: l.queue.len()})
	}
	r.mu.Unlock()
	return st
}

// SetOnConnect sets a callback invoked after each connect, once
// subscriptions have been issued.
func (r *Runtime) SetOnConnect(callback func()) {
	r.callbackMu.Lock()
	r.onConnect = callback
	r.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the session loses its broker.
func (r *Runtime) SetOnDisconnect(callback func(err error)) {
	r.callbackMu.Lock()
	r.onDisconnect = callback
	r.callbackMu.Unlock()
}

// SetLogger sets the logger. A nil logger disables logging.
func (r *Runtime) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Runtime) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

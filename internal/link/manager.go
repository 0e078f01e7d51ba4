package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mobus-dev/mobus-core/internal/store"
)

// DefaultMaxRetries bounds automatic reconnects before the link fails.
const DefaultMaxRetries = 5

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State          State  `json:"state"`
	Retries        int    `json:"retries"`
	SSID           string `json:"ssid,omitempty"`
	Address        string `json:"address,omitempty"`
	FallbackActive bool   `json:"fallback_active"`
	Reconfiguring  bool   `json:"reconfiguring"`
}

// Manager drives the station connection: manual (re)configuration,
// bounded automatic reconnects, and the post-connect hook.
//
// All radio events enter through HandleEvent. Failures are reported through
// State, never returned from the event path.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Radio calls are made without holding the state lock.
type Manager struct {
	radio      Radio
	creds      store.Credentials
	kv         store.KV
	maxRetries int

	// reconfiguring suppresses auto-reconnect while ConfigureAndConnect
	// replaces the configuration.
	reconfiguring      atomic.Bool
	fallbackActive     atomic.Bool
	postConnectRunning atomic.Bool

	mu      sync.Mutex
	state   State
	retries int
	applied Config
	address string
	changed chan struct{}

	onStateChange func(State)
	postConnect   func()
	onFailed      func()
	hookMu        sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewManager creates a manager in state Disconnected.
//
// Parameters:
//   - radio: Station backend
//   - creds: Saved networks for ConnectToAnySaved
//   - kv: Settings store holding the forced-off flags
//   - maxRetries: Automatic reconnect budget; <= 0 means DefaultMaxRetries
func NewManager(radio Radio, creds store.Credentials, kv store.KV, maxRetries int) *Manager {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Manager{
		radio:      radio,
		creds:      creds,
		kv:         kv,
		maxRetries: maxRetries,
		state:      StateDisconnected,
		changed:    make(chan struct{}),
		logger:     noopLogger{},
	}
}

// ConfigureAndConnect applies a station configuration and issues a connect
// request. Empty ssid and password reuse the last applied configuration.
// It returns once the request is issued; completion is reported by state.
func (m *Manager) ConfigureAndConnect(ssid, password string) error {
	m.reconfiguring.Store(true)
	defer m.reconfiguring.Store(false)

	cfg := Config{SSID: ssid, Password: password}

	m.mu.Lock()
	m.retries = 0
	m.address = ""
	if ssid == "" && password == "" {
		cfg = m.applied
	}
	if cfg.SSID == "" {
		changed := m.setStateLocked(StateFailed)
		m.mu.Unlock()
		m.notifyState(changed, StateFailed)
		m.getLogger().Warn("station configuration skipped: empty SSID")
		return ErrNoConfiguration
	}
	m.applied = cfg
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.notifyState(changed, StateConnecting)

	if m.radio.Started() {
		if err := m.radio.Disconnect(); err != nil {
			m.getLogger().Debug("radio disconnect before reconfigure", "error", err)
		}
		if err := m.radio.Stop(); err != nil {
			m.getLogger().Warn("radio stop before reconfigure", "error", err)
		}
	}

	if err := m.radio.SetConfig(cfg); err != nil {
		return m.radioFailed("applying configuration", err)
	}
	if err := m.radio.Start(); err != nil {
		return m.radioFailed("starting radio", err)
	}
	if err := m.radio.Connect(); err != nil {
		return m.radioFailed("requesting connect", err)
	}

	m.getLogger().Info("connecting", "ssid", cfg.SSID)
	return nil
}

// Release takes the station link down so another radio user can have it.
// The retry counter is cleared and the state becomes Disconnected. Callers
// set a forced-off flag first so late disconnect events do not reconnect.
func (m *Manager) Release() error {
	m.reconfiguring.Store(true)
	defer m.reconfiguring.Store(false)

	m.mu.Lock()
	m.retries = 0
	m.address = ""
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.notifyState(changed, StateDisconnected)

	if !m.radio.Started() {
		return nil
	}
	if err := m.radio.Disconnect(); err != nil {
		m.getLogger().Debug("radio disconnect on release", "error", err)
	}
	if err := m.radio.Stop(); err != nil {
		return fmt.Errorf("%w: stopping radio: %w", ErrRadio, err)
	}
	m.getLogger().Info("station link released")
	return nil
}

func (m *Manager) radioFailed(op string, err error) error {
	m.setState(StateFailed)
	m.getLogger().Error("radio error", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrRadio, op, err)
}

// ConnectToAnySaved tries each saved network in stored order, waiting up to
// perCandidate for each to settle. It returns nil on the first success.
func (m *Manager) ConnectToAnySaved(ctx context.Context, perCandidate time.Duration) error {
	creds, err := m.creds.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading saved networks: %w", err)
	}
	if len(creds) == 0 {
		m.getLogger().Info("no saved networks")
		return ErrNoSavedNetworks
	}

	for _, c := range creds {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.getLogger().Info("trying saved network", "ssid", c.Name)
		if err := m.ConfigureAndConnect(c.Name, c.Secret); err != nil {
			m.getLogger().Warn("saved network could not be applied", "ssid", c.Name, "error", err)
			continue
		}
		st, err := m.WaitSettled(ctx, perCandidate)
		if st == StateConnected {
			m.getLogger().Info("connected to saved network", "ssid", c.Name)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		m.getLogger().Warn("saved network failed", "ssid", c.Name, "state", st.String(), "error", err)
	}
	return ErrAllCandidatesFailed
}

// WaitSettled blocks until the state is Connected or Failed, the timeout
// elapses, or ctx is done. It returns the state observed last.
func (m *Manager) WaitSettled(ctx context.Context, timeout time.Duration) (State, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		st, ch := m.state, m.changed
		m.mu.Unlock()

		if st.settled() {
			return st, nil
		}

		select {
		case <-ch:
		case <-timer.C:
			return m.State(), context.DeadlineExceeded
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
}

// HandleEvent processes one radio event. It may be called from any goroutine.
func (m *Manager) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventStarted:
		m.getLogger().Debug("radio started")
	case EventDisconnected:
		m.handleDisconnected(ev.Reason)
	case EventGotIP:
		m.handleGotIP(ev.Address)
	default:
		m.getLogger().Debug("ignoring radio event", "kind", ev.Kind.String())
	}
}

func (m *Manager) handleDisconnected(reason string) {
	log := m.getLogger()
	forced := m.forcedOff()

	m.mu.Lock()
	m.address = ""
	if m.reconfiguring.Load() {
		m.mu.Unlock()
		log.Debug("reconfiguring; skip auto-reconnect", "reason", reason)
		return
	}
	if m.fallbackActive.Load() {
		changed := false
		if m.state == StateConnected {
			changed = m.setStateLocked(StateDisconnected)
		}
		m.mu.Unlock()
		m.notifyState(changed, StateDisconnected)
		log.Debug("fallback active; skip immediate reconnect", "reason", reason)
		return
	}

	if m.retries >= m.maxRetries {
		changed := m.setStateLocked(StateFailed)
		m.mu.Unlock()
		if !changed {
			log.Debug("link already failed", "reason", reason)
			return
		}
		m.notifyState(changed, StateFailed)
		log.Warn("station link failed", "retries", m.maxRetries, "reason", reason)
		m.fireFailed()
		return
	}

	if forced {
		changed := m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		m.notifyState(changed, StateDisconnected)
		log.Info("link forced off; skip auto-reconnect", "reason", reason)
		return
	}

	m.retries++
	attempt := m.retries
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.notifyState(changed, StateConnecting)

	log.Info("reconnecting", "attempt", attempt, "max", m.maxRetries, "reason", reason)
	if err := m.radio.Connect(); err != nil {
		log.Warn("reconnect request failed", "error", err)
	}
}

func (m *Manager) handleGotIP(address string) {
	m.mu.Lock()
	m.retries = 0
	m.address = address
	changed := m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.notifyState(changed, StateConnected)

	m.getLogger().Info("station connected", "address", address)

	if !changed {
		return
	}
	m.hookMu.RLock()
	hook := m.postConnect
	m.hookMu.RUnlock()
	if hook == nil {
		return
	}
	if !m.postConnectRunning.CompareAndSwap(false, true) {
		m.getLogger().Debug("post-connect action already running")
		return
	}
	go func() {
		defer m.postConnectRunning.Store(false)
		hook()
	}()
}

// forcedOff reports whether the pairing channel or the user has taken the
// link down on purpose. Read errors count as not forced.
func (m *Manager) forcedOff() bool {
	ctx := context.Background()
	return store.Flag(ctx, m.kv, store.KeyPairActive, "true") ||
		store.Flag(ctx, m.kv, store.KeyManualOff, "1")
}

// setStateLocked records a new state and wakes waiters. Callers hold m.mu.
func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	close(m.changed)
	m.changed = make(chan struct{})
	return true
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.setStateLocked(s)
	m.mu.Unlock()
	m.notifyState(changed, s)
}

func (m *Manager) notifyState(changed bool, s State) {
	if !changed {
		return
	}
	m.hookMu.RLock()
	callback := m.onStateChange
	m.hookMu.RUnlock()
	if callback != nil {
		callback(s)
	}
}

func (m *Manager) fireFailed() {
	m.hookMu.RLock()
	hook := m.onFailed
	m.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the number of automatic reconnects since the last
// success or manual configuration.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Status returns a snapshot for reporting.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:          m.state,
		Retries:        m.retries,
		SSID:           m.applied.SSID,
		Address:        m.address,
		FallbackActive: m.fallbackActive.Load(),
		Reconfiguring:  m.reconfiguring.Load(),
	}
}

// SetFallbackActive marks whether the pairing fallback currently owns the
// radio. While set, disconnects do not trigger immediate reconnects.
func (m *Manager) SetFallbackActive(active bool) {
	m.fallbackActive.Store(active)
}

// enterFallback sets the fallback flag, reporting false if it was already set.
func (m *Manager) enterFallback() bool {
	return m.fallbackActive.CompareAndSwap(false, true)
}

// FallbackActive reports whether the pairing fallback is engaged.
func (m *Manager) FallbackActive() bool {
	return m.fallbackActive.Load()
}

// SetOnStateChange sets a callback invoked after every state change.
// It runs on the goroutine that caused the change and must not block.
func (m *Manager) SetOnStateChange(callback func(State)) {
	m.hookMu.Lock()
	m.onStateChange = callback
	m.hookMu.Unlock()
}

// SetPostConnect sets the action spawned on each transition into
// Connected. At most one instance runs at a time.
func (m *Manager) SetPostConnect(action func()) {
	m.hookMu.Lock()
	m.postConnect = action
	m.hookMu.Unlock()
}

// SetOnFailed sets a callback invoked when a disconnect arrives with the
// retry budget exhausted.
func (m *Manager) SetOnFailed(callback func()) {
	m.hookMu.Lock()
	m.onFailed = callback
	m.hookMu.Unlock()
}

// SetLogger sets the logger. A nil logger disables logging.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

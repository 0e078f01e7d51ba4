package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mobus-dev/mobus-core/internal/store"
)

// Default fallback timings.
const (
	DefaultRetryInterval    = 20 * time.Second
	DefaultPerTryTimeout    = 8 * time.Second
	DefaultCandidateTimeout = 12 * time.Second
)

// Pairing is the secondary radio channel used while the station link is down.
type Pairing interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Ready() bool
}

// Session is the messaging session that has to make room for the pairing
// channel.
type Session interface {
	Pause()
	Resume() error
	IsRunning() bool
}

// FallbackOptions configures the fallback coordinator.
type FallbackOptions struct {
	// Enabled allows automatic fallback to the pairing channel.
	Enabled bool

	// RetryInterval is the pause between station retries while in fallback.
	RetryInterval time.Duration

	// PerTryTimeout bounds each saved network during a fallback retry.
	PerTryTimeout time.Duration

	// CandidateTimeout bounds each saved network during Boot.
	CandidateTimeout time.Duration
}

// BootResult is the outcome of Fallback.Boot.
type BootResult int

// Boot outcomes.
const (
	BootConnected BootResult = iota
	BootFallbackActive
	BootDeferred
	BootManualOff
	BootInitError

	// BootOffline means no network connected and fallback is disabled.
	BootOffline
)

// String returns the lowercase result name.
func (r BootResult) String() string {
	switch r {
	case BootConnected:
		return "connected"
	case BootFallbackActive:
		return "fallback_active"
	case BootDeferred:
		return "deferred"
	case BootManualOff:
		return "manual_off"
	case BootInitError:
		return "init_error"
	case BootOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Fallback hands the radio to the pairing channel when the station link
// fails, and keeps retrying saved networks in the background until one
// connects.
type Fallback struct {
	mgr     *Manager
	kv      store.KV
	pairing Pairing
	session Session
	opts    FallbackOptions

	retryRunning atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewFallback creates a coordinator. pairing may be nil when the device has
// no pairing channel; fallback then never engages.
func NewFallback(mgr *Manager, kv store.KV, pairing Pairing, session Session, opts FallbackOptions) *Fallback {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.PerTryTimeout <= 0 {
		opts.PerTryTimeout = DefaultPerTryTimeout
	}
	if opts.CandidateTimeout <= 0 {
		opts.CandidateTimeout = DefaultCandidateTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fallback{
		mgr:     mgr,
		kv:      kv,
		pairing: pairing,
		session: session,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		logger:  noopLogger{},
	}
}

// Engage switches to the pairing channel unless the link is forced off, the
// device is in factory setup mode, or fallback is already active. On success
// it starts the background retry loop.
func (f *Fallback) Engage() {
	log := f.getLogger()

	if f.factorySetupMode() {
		log.Warn("factory setup mode active; fallback suppressed")
		f.setAuto(false)
		return
	}
	if !f.opts.Enabled || f.forcedOff() {
		return
	}
	if !f.mgr.enterFallback() {
		return
	}

	log.Warn("station link unavailable; switching to pairing fallback")
	f.setKV(store.KeyAutoFallback, "1")

	f.session.Pause()
	if err := f.enablePairing(); err != nil {
		log.Warn("pairing fallback enable failed", "error", err)
		f.resumeSession()
		f.setAuto(false)
		return
	}

	if f.retryRunning.CompareAndSwap(false, true) {
		f.wg.Add(1)
		go f.retryLoop()
	}
}

func (f *Fallback) retryLoop() {
	defer f.wg.Done()
	defer f.retryRunning.Store(false)
	log := f.getLogger()

	if f.factorySetupMode() {
		f.setAuto(false)
		return
	}

	timer := time.NewTimer(f.opts.RetryInterval)
	defer timer.Stop()

	for f.mgr.FallbackActive() {
		select {
		case <-f.ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(f.opts.RetryInterval)

		if !f.mgr.FallbackActive() {
			break
		}
		if f.factorySetupMode() {
			log.Warn("factory setup mode active; stopping fallback retries")
			f.setAuto(false)
			break
		}
		if f.forcedOff() {
			continue
		}

		log.Info("fallback active; retrying station link")
		if f.pairing != nil {
			if err := f.pairing.Disable(f.ctx); err != nil {
				log.Warn("pairing disable failed", "error", err)
			}
		}
		f.resumeSession()

		err := f.mgr.ConnectToAnySaved(f.ctx, f.opts.PerTryTimeout)
		if err == nil {
			log.Info("station link restored; leaving fallback")
			f.setAuto(false)
			break
		}
		if errors.Is(err, context.Canceled) {
			return
		}

		log.Warn("station retry failed; back to pairing fallback", "error", err)
		f.session.Pause()
		if err := f.enablePairing(); err != nil {
			log.Warn("pairing re-enable failed", "error", err)
		}
	}
}

// PostConnect runs once per transition into Connected: it leaves fallback,
// shuts the pairing channel if it is up, and makes sure messaging runs.
func (f *Fallback) PostConnect() {
	log := f.getLogger()
	f.setAuto(false)

	if f.pairing != nil && f.pairing.Ready() {
		log.Info("station connected; disabling pairing channel")
		if err := f.pairing.Disable(f.ctx); err != nil {
			log.Warn("pairing disable failed", "error", err)
		}
		f.setKV(store.KeyPairActive, "false")
		f.setKV(store.KeyPairCode, "")
		f.setKV(store.KeyPairExpiry, "0")
		f.setKV(store.KeyLinkResetPending, "0")
	}

	if !f.session.IsRunning() {
		f.resumeSession()
	}
}

// Boot brings the station link up at startup and decides whether the
// pairing channel should take over.
func (f *Fallback) Boot(ctx context.Context) BootResult {
	log := f.getLogger()

	// A stale reset marker would otherwise keep suppressing reconnects.
	if !store.Flag(ctx, f.kv, store.KeyPairActive, "true") &&
		store.Flag(ctx, f.kv, store.KeyLinkResetPending, "1") {
		f.setKV(store.KeyLinkResetPending, "0")
	}

	if !f.mgr.radio.Started() {
		if err := f.mgr.radio.Start(); err != nil {
			log.Error("radio init failed", "error", err)
			return f.bootInitFailed()
		}
	}

	if store.Flag(ctx, f.kv, store.KeyManualOff, "1") {
		log.Info("station link disabled by user; skipping auto-connect")
		if err := f.mgr.radio.Stop(); err != nil {
			log.Warn("radio stop failed", "error", err)
		}
		return BootManualOff
	}

	err := f.mgr.ConnectToAnySaved(ctx, f.opts.CandidateTimeout)
	if err == nil {
		return BootConnected
	}
	log.Warn("no saved network connected at boot", "error", err)

	if f.consumeDeferOnce() {
		log.Warn("fallback deferred for this boot")
		return BootDeferred
	}
	if f.factorySetupMode() {
		log.Warn("factory setup mode active; pairing stays off until setup completes")
		f.setAuto(false)
		return BootDeferred
	}
	if !f.opts.Enabled {
		return BootOffline
	}
	f.Engage()
	if !f.mgr.FallbackActive() {
		return BootOffline
	}
	return BootFallbackActive
}

func (f *Fallback) bootInitFailed() BootResult {
	if f.consumeDeferOnce() {
		f.setAuto(false)
		return BootDeferred
	}
	if f.factorySetupMode() {
		f.setAuto(false)
		return BootDeferred
	}
	if f.opts.Enabled {
		f.setAuto(true)
		f.session.Pause()
		if err := f.enablePairing(); err != nil {
			f.getLogger().Warn("pairing enable failed", "error", err)
		}
	}
	return BootInitError
}

// Close stops the retry loop and waits for it to exit.
func (f *Fallback) Close() {
	f.cancel()
	f.wg.Wait()
}

// factorySetupMode reports factory setup mode, switching it on when no
// owner profile has been stored yet.
func (f *Fallback) factorySetupMode() bool {
	v, _ := f.kv.Get(f.ctx, store.KeyFactorySetup) //nolint:errcheck // Read errors count as unset
	if v == "1" {
		return true
	}
	if user, err := f.kv.Get(f.ctx, store.KeyUserName); err == nil && user == "" {
		f.setKV(store.KeyFactorySetup, "1")
		f.getLogger().Warn("factory setup mode auto-enabled: no owner profile")
		return true
	}
	return false
}

func (f *Fallback) forcedOff() bool {
	return store.Flag(f.ctx, f.kv, store.KeyPairActive, "true") ||
		store.Flag(f.ctx, f.kv, store.KeyManualOff, "1")
}

func (f *Fallback) consumeDeferOnce() bool {
	if !store.Flag(f.ctx, f.kv, store.KeyAutoDeferOnce, "1") {
		return false
	}
	f.setKV(store.KeyAutoDeferOnce, "0")
	return true
}

// setAuto persists the fallback flag and mirrors it into the manager.
func (f *Fallback) setAuto(enabled bool) {
	v := "0"
	if enabled {
		v = "1"
	}
	f.setKV(store.KeyAutoFallback, v)
	f.mgr.SetFallbackActive(enabled)
}

func (f *Fallback) enablePairing() error {
	if f.pairing == nil {
		return ErrPairingUnavailable
	}
	return f.pairing.Enable(f.ctx)
}

func (f *Fallback) resumeSession() {
	if err := f.session.Resume(); err != nil {
		f.getLogger().Debug("messaging resume skipped", "error", err)
	}
}

func (f *Fallback) setKV(key, value string) {
	if err := f.kv.Set(f.ctx, key, value); err != nil {
		f.getLogger().Warn("persisting setting failed", "key", key, "error", err)
	}
}

// SetLogger sets the logger. A nil logger disables logging.
func (f *Fallback) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	f.loggerMu.Lock()
	f.logger = logger
	f.loggerMu.Unlock()
}

func (f *Fallback) getLogger() Logger {
	f.loggerMu.RLock()
	defer f.loggerMu.RUnlock()
	return f.logger
}

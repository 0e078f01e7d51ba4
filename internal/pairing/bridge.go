package pairing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/mobus-dev/mobus-core/internal/link"
	"github.com/mobus-dev/mobus-core/internal/process"
	"github.com/mobus-dev/mobus-core/internal/store"
)

// DefaultSessionTTL is how long an operator pairing session stays open.
const DefaultSessionTTL = 5 * time.Minute

// Options configures the bridge daemon.
type Options struct {
	Binary          string
	Args            []string
	GracefulTimeout time.Duration
}

// Daemon is the supervised bridge process.
type Daemon interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// Session describes an open operator pairing session.
type Session struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Station is the station link that gives up the radio for a session.
// link.Manager satisfies it.
type Station interface {
	State() link.State
	Release() error
	ConfigureAndConnect(ssid, password string) error
}

// Logger is the logging contract used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Bridge switches the pairing channel on and off. It satisfies
// link.Pairing.
type Bridge struct {
	daemon Daemon
	kv     store.KV
	now    func() time.Time

	station Station
	session link.Session

	mu    sync.Mutex
	ready bool

	// resumeSession is set when BeginSession paused a running session.
	resumeSession bool

	logger Logger
}

// New creates a bridge that supervises the configured daemon. An empty
// Binary yields a bridge whose Enable always fails with ErrDisabled.
func New(opts Options, kv store.KV) *Bridge {
	var d Daemon
	if opts.Binary != "" {
		d = process.New(process.Config{
			Name:            "pairing-bridge",
			Binary:          opts.Binary,
			Args:            opts.Args,
			Restart:         true,
			GracefulTimeout: opts.GracefulTimeout,
		})
	}
	return NewWithDaemon(d, kv)
}

// NewWithDaemon creates a bridge around an existing daemon.
func NewWithDaemon(d Daemon, kv store.KV) *Bridge {
	return &Bridge{daemon: d, kv: kv, now: time.Now, logger: noopLogger{}}
}

// Enable starts the bridge daemon. Enabling an enabled channel is a no-op.
func (b *Bridge) Enable(ctx context.Context) error {
	if b.daemon == nil {
		return ErrDisabled
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	if err := b.daemon.Start(ctx); err != nil && !errors.Is(err, process.ErrAlreadyRunning) {
		return fmt.Errorf("starting pairing bridge: %w", err)
	}
	b.ready = true
	b.logger.Info("pairing channel enabled")
	return nil
}

// Disable stops the bridge daemon.
func (b *Bridge) Disable(_ context.Context) error {
	if b.daemon == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	if err := b.daemon.Stop(); err != nil {
		return fmt.Errorf("stopping pairing bridge: %w", err)
	}
	b.logger.Info("pairing channel disabled")
	return nil
}

// Ready reports whether the channel is enabled and its daemon is up.
func (b *Bridge) Ready() bool {
	if b.daemon == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready && b.daemon.Running()
}

// SetHandoff sets the station link and messaging session that an operator
// session takes over. Either may be nil. Call before use.
func (b *Bridge) SetHandoff(station Station, session link.Session) {
	b.station = station
	b.session = session
}

// BeginSession opens an operator pairing session: it persists the pairing
// flag, a six-digit code and its expiry, takes the station link down
// (remembering whether it was connected), pauses messaging, then enables
// the channel. While the flag is set the station link does not
// auto-reconnect.
func (b *Bridge) BeginSession(ctx context.Context, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	code, err := newCode()
	if err != nil {
		return Session{}, err
	}
	s := Session{Code: code, ExpiresAt: b.now().Add(ttl)}

	if err := b.kv.Set(ctx, store.KeyPairActive, "true"); err != nil {
		return Session{}, err
	}
	if err := b.kv.Set(ctx, store.KeyPairCode, s.Code); err != nil {
		return Session{}, err
	}
	if err := b.kv.Set(ctx, store.KeyPairExpiry, strconv.FormatInt(s.ExpiresAt.UnixMicro(), 10)); err != nil {
		return Session{}, err
	}
	b.takeRadio(ctx)
	if err := b.Enable(ctx); err != nil {
		b.clearSession(ctx)
		b.handBack(ctx)
		return Session{}, err
	}
	return s, nil
}

// CurrentSession returns the open session, if any. An expired session is
// reported as absent.
func (b *Bridge) CurrentSession(ctx context.Context) (Session, bool) {
	if !store.Flag(ctx, b.kv, store.KeyPairActive, "true") {
		return Session{}, false
	}
	code, _ := b.kv.Get(ctx, store.KeyPairCode)   //nolint:errcheck // Missing reads as empty
	raw, _ := b.kv.Get(ctx, store.KeyPairExpiry) //nolint:errcheck // Missing reads as empty
	us, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Session{}, false
	}
	exp := time.UnixMicro(us)
	if !b.now().Before(exp) {
		return Session{}, false
	}
	return Session{Code: code, ExpiresAt: exp}, true
}

// EndSession closes the operator session, disables the channel and hands
// the radio back: the station link reconnects if it was connected when the
// session began, and a paused messaging session resumes.
func (b *Bridge) EndSession(ctx context.Context) error {
	if !store.Flag(ctx, b.kv, store.KeyPairActive, "true") {
		return ErrNoSession
	}
	b.clearSession(ctx)
	err := b.Disable(ctx)
	b.handBack(ctx)
	return err
}

func (b *Bridge) takeRadio(ctx context.Context) {
	if b.station != nil {
		if b.station.State() == link.StateConnected {
			if err := b.kv.Set(ctx, store.KeyLinkResetPending, "1"); err != nil {
				b.logger.Warn("recording link restore", "error", err)
			}
		}
		if err := b.station.Release(); err != nil {
			b.logger.Warn("releasing station link", "error", err)
		}
	}
	if b.session != nil && b.session.IsRunning() {
		b.session.Pause()
		b.mu.Lock()
		b.resumeSession = true
		b.mu.Unlock()
	}
}

func (b *Bridge) handBack(ctx context.Context) {
	if b.station != nil && store.Flag(ctx, b.kv, store.KeyLinkResetPending, "1") {
		if err := b.kv.Set(ctx, store.KeyLinkResetPending, "0"); err != nil {
			b.logger.Warn("clearing link restore", "error", err)
		}
		b.logger.Info("restoring station link")
		if err := b.station.ConfigureAndConnect("", ""); err != nil {
			b.logger.Warn("restoring station link", "error", err)
		}
	}

	b.mu.Lock()
	resume := b.resumeSession
	b.resumeSession = false
	b.mu.Unlock()
	if resume && b.session != nil {
		if err := b.session.Resume(); err != nil {
			b.logger.Warn("resuming messaging", "error", err)
		}
	}
}

// ExpireSession ends a session whose expiry has passed. It reports whether
// one was ended.
func (b *Bridge) ExpireSession(ctx context.Context) bool {
	if !store.Flag(ctx, b.kv, store.KeyPairActive, "true") {
		return false
	}
	if _, ok := b.CurrentSession(ctx); ok {
		return false
	}
	b.logger.Info("pairing session expired")
	if err := b.EndSession(ctx); err != nil {
		b.logger.Warn("ending expired pairing session", "error", err)
	}
	return true
}

func (b *Bridge) clearSession(ctx context.Context) {
	for key, value := range map[string]string{
		store.KeyPairActive: "false",
		store.KeyPairCode:   "",
		store.KeyPairExpiry: "0",
	} {
		if err := b.kv.Set(ctx, key, value); err != nil {
			b.logger.Warn("clearing pairing state", "key", key, "error", err)
		}
	}
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating pairing code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SetLogger sets the logger. Call before use.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
	if d, ok := b.daemon.(interface{ SetLogger(process.Logger) }); ok {
		if pl, ok := logger.(process.Logger); ok {
			d.SetLogger(pl)
		}
	}
}

package wlan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mobus-dev/mobus-core/internal/link"
	"github.com/mobus-dev/mobus-core/internal/process"
)

// Default timings.
const (
	DefaultPollInterval  = time.Second
	DefaultAttemptWindow = 15 * time.Second
)

// startTimeout bounds daemon launch plus the readiness ping.
const startTimeout = 10 * time.Second

// Options configures the supplicant radio.
type Options struct {
	Interface       string
	Binary          string
	CLIBinary       string
	ConfigPath      string
	ControlDir      string
	Driver          string
	PollInterval    time.Duration
	AttemptWindow   time.Duration
	GracefulTimeout time.Duration
}

// Daemon is the supervised wpa_supplicant process.
type Daemon interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// Logger is the logging contract used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supplicant implements link.Radio on top of wpa_supplicant.
//
// Link events are synthesised by polling wpa_cli status: a transition to
// COMPLETED with an address yields EventGotIP, losing it yields
// EventDisconnected, and a connect request that does not complete within
// AttemptWindow is reported as a disconnect so the link manager can retry.
type Supplicant struct {
	opts   Options
	daemon Daemon
	cli    Commander

	mu        sync.Mutex
	cfg       link.Config
	started   bool
	online    bool
	attemptAt time.Time
	stopPoll  context.CancelFunc
	pollDone  chan struct{}

	sink   func(link.Event)
	sinkMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a supplicant radio that supervises the daemon itself.
func New(opts Options) *Supplicant {
	opts = withDefaults(opts)
	cli := CLI{Binary: opts.CLIBinary, ControlDir: opts.ControlDir, Interface: opts.Interface}

	sup := process.New(process.Config{
		Name:            "wpa_supplicant",
		Binary:          opts.Binary,
		Args:            []string{"-i", opts.Interface, "-D", opts.Driver, "-c", opts.ConfigPath},
		Restart:         true,
		GracefulTimeout: opts.GracefulTimeout,
		Ready: func(ctx context.Context) error {
			reply, err := cli.Run(ctx, "ping")
			if err != nil {
				return err
			}
			if reply != "PONG" {
				return fmt.Errorf("unexpected ping reply %q", reply)
			}
			return nil
		},
	})
	return NewWithDaemon(opts, sup, cli)
}

// NewWithDaemon creates a supplicant radio around an existing daemon and
// control channel.
func NewWithDaemon(opts Options, daemon Daemon, cli Commander) *Supplicant {
	return &Supplicant{
		opts:   withDefaults(opts),
		daemon: daemon,
		cli:    cli,
		logger: noopLogger{},
	}
}

func withDefaults(o Options) Options {
	if o.Interface == "" {
		o.Interface = "wlan0"
	}
	if o.CLIBinary == "" {
		o.CLIBinary = "wpa_cli"
	}
	if o.Driver == "" {
		o.Driver = "nl80211"
	}
	if o.ControlDir == "" {
		o.ControlDir = "/run/wpa_supplicant"
	}
	if o.ConfigPath == "" {
		o.ConfigPath = "./data/wpa_supplicant.conf"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.AttemptWindow <= 0 {
		o.AttemptWindow = DefaultAttemptWindow
	}
	return o
}

// SetEventSink sets where link events are delivered, normally
// link.Manager.HandleEvent.
func (s *Supplicant) SetEventSink(sink func(link.Event)) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

// Started reports whether Start succeeded and Stop has not been called.
func (s *Supplicant) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start writes the current configuration, launches the daemon and begins
// status polling.
func (s *Supplicant) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	if err := s.install(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := s.daemon.Start(ctx); err != nil {
		return fmt.Errorf("starting wpa_supplicant: %w", err)
	}

	pollCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.started = true
	s.online = false
	s.attemptAt = time.Time{}
	s.stopPoll = stop
	s.pollDone = done
	s.mu.Unlock()

	go s.poll(pollCtx, done)
	s.emit(link.Event{Kind: link.EventStarted})
	return nil
}

// Stop halts polling and the daemon.
func (s *Supplicant) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.online = false
	stop, done := s.stopPoll, s.pollDone
	s.stopPoll, s.pollDone = nil, nil
	s.mu.Unlock()

	stop()
	<-done
	if err := s.daemon.Stop(); err != nil {
		return fmt.Errorf("stopping wpa_supplicant: %w", err)
	}
	return nil
}

// SetConfig stores cfg and rewrites the daemon configuration file. A
// running daemon is told to reload it.
func (s *Supplicant) SetConfig(cfg link.Config) error {
	if err := s.install(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}
	_, err := s.command("reconfigure")
	return err
}

func (s *Supplicant) install(cfg link.Config) error {
	content, err := renderConf(s.opts.ControlDir, cfg)
	if err != nil {
		return err
	}
	return writeConf(s.opts.ConfigPath, content)
}

// Connect asks the daemon to associate and opens the attempt window.
func (s *Supplicant) Connect() error {
	if !s.Started() {
		return ErrNotStarted
	}
	if _, err := s.command("reconnect"); err != nil {
		return err
	}
	s.mu.Lock()
	s.attemptAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Disconnect drops the current association.
func (s *Supplicant) Disconnect() error {
	if !s.Started() {
		return ErrNotStarted
	}
	s.mu.Lock()
	s.attemptAt = time.Time{}
	s.mu.Unlock()
	_, err := s.command("disconnect")
	return err
}

func (s *Supplicant) command(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.cli.Run(ctx, args...)
}

func (s *Supplicant) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.pollOnce(ctx, time.Now())
	}
}

// pollOnce reads the daemon status and emits at most one link event.
func (s *Supplicant) pollOnce(ctx context.Context, now time.Time) {
	qctx, cancel := context.WithTimeout(ctx, s.opts.PollInterval)
	out, err := s.cli.Run(qctx, "status")
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			s.getLogger().Debug("supplicant status unavailable", "error", err)
		}
		return
	}
	ev, ok := s.observe(parseStatus(out), now)
	if ok {
		s.emit(ev)
	}
}

func (s *Supplicant) observe(st linkStatus, now time.Time) (link.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return link.Event{}, false
	}
	switch {
	case st.online() && !s.online:
		s.online = true
		s.attemptAt = time.Time{}
		return link.Event{Kind: link.EventGotIP, Address: st.Address}, true
	case !st.online() && s.online:
		s.online = false
		return link.Event{Kind: link.EventDisconnected, Reason: stateReason(st.State)}, true
	case !st.online() && !s.attemptAt.IsZero() && now.Sub(s.attemptAt) >= s.opts.AttemptWindow:
		s.attemptAt = time.Time{}
		return link.Event{Kind: link.EventDisconnected, Reason: "association timeout"}, true
	}
	return link.Event{}, false
}

func stateReason(state string) string {
	if state == "" {
		return "link lost"
	}
	return "supplicant state " + state
}

func (s *Supplicant) emit(ev link.Event) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

// SetLogger sets the logger. A nil logger disables logging.
func (s *Supplicant) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()

	if d, ok := s.daemon.(interface{ SetLogger(process.Logger) }); ok {
		d.SetLogger(logger)
	}
}

func (s *Supplicant) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

var _ link.Radio = (*Supplicant)(nil)

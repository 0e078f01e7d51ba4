package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the lifecycle state of a supervised daemon.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
	StateFailed   State = "failed"
)

// Config describes one supervised daemon.
type Config struct {
	// Name identifies the daemon in logs.
	Name string

	// Binary is the executable path.
	Binary string

	// Args are passed to Binary.
	Args []string

	// Env is appended to the parent environment. Nil inherits it unchanged.
	Env []string

	// Restart re-launches the daemon when it exits on its own.
	Restart bool

	// RestartDelay is the first backoff delay; it doubles per consecutive
	// crash up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestarts limits consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL on Stop.
	GracefulTimeout time.Duration

	// Ready, if set, is polled after launch until it returns nil.
	Ready        func(ctx context.Context) error
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration
}

// Logger defines the logging interface for the supervisor.
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

// Stats is a snapshot of a supervised daemon.
type Stats struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Supervisor runs and restarts one daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Supervisor struct {
	cfg Config

	mu        sync.RWMutex
	cmd       *exec.Cmd
	state     State
	restarts  int
	lastErr   error
	startedAt time.Time
	stopping  bool
	exited    chan struct{} // closed when the watch goroutine returns
	cancel    context.CancelFunc

	onExit func(err error)

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a stopped supervisor, filling zero timings with defaults.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = time.Minute
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.ReadyPoll <= 0 {
		cfg.ReadyPoll = 100 * time.Millisecond
	}
	return &Supervisor{
		cfg:    cfg,
		state:  StateStopped,
		logger: noopLogger{},
	}
}

// Start launches the daemon and, when a probe is configured, waits until it
// reports ready. ctx bounds only the wait; the daemon outlives it and runs
// until Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Binary == "" {
		return ErrNoBinary
	}

	s.mu.Lock()
	if s.state == StateRunning || s.state == StateStarting || s.state == StateBackoff {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.state = StateStarting
	s.stopping = false
	s.restarts = 0
	s.exited = make(chan struct{})
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	exited := s.exited
	s.mu.Unlock()

	if err := s.launch(); err != nil {
		cancel()
		close(exited)
		s.fail(err)
		return err
	}
	go s.watch(runCtx, exited)

	if err := s.waitReady(ctx); err != nil {
		_ = s.Stop() //nolint:errcheck // The readiness error is what the caller needs
		s.fail(err)
		return err
	}
	return nil
}

func (s *Supervisor) waitReady(ctx context.Context) error {
	if s.cfg.Ready == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.ReadyPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = s.cfg.Ready(ctx); lastErr == nil {
			s.getLogger().Debug("daemon ready", "name", s.cfg.Name)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrNotReady, s.cfg.Name, lastErr)
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) launch() error {
	log := s.getLogger()
	log.Info("starting daemon", "name", s.cfg.Name, "binary", s.cfg.Binary, "args", s.cfg.Args)

	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.relay("stdout", stdout)
	go s.relay("stderr", stderr)

	log.Info("daemon started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return nil
}

// relay logs daemon output one line at a time.
func (s *Supervisor) relay(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.getLogger().Debug("daemon output", "name", s.cfg.Name, "stream", stream, "line", sc.Text())
	}
}

// watch waits on the daemon and restarts it until Stop or the restart
// budget runs out.
func (s *Supervisor) watch(ctx context.Context, exited chan struct{}) {
	defer close(exited)
	log := s.getLogger()
	delay := s.cfg.RestartDelay

	for {
		s.mu.RLock()
		cmd := s.cmd
		s.mu.RUnlock()

		err := cmd.Wait()

		s.mu.Lock()
		stopping := s.stopping
		uptime := time.Since(s.startedAt)
		s.mu.Unlock()

		if stopping {
			s.setState(StateStopped)
			log.Info("daemon stopped", "name", s.cfg.Name)
			s.fireExit(nil)
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		log.Warn("daemon exited unexpectedly", "name", s.cfg.Name, "error", err, "uptime", uptime)
		s.fail(err)
		s.fireExit(err)

		if !s.cfg.Restart {
			return
		}

		s.mu.Lock()
		// A daemon that stayed up for a while earns a fresh backoff.
		if uptime > s.cfg.MaxRestartDelay {
			s.restarts = 0
			delay = s.cfg.RestartDelay
		}
		s.restarts++
		attempt := s.restarts
		s.mu.Unlock()

		if s.cfg.MaxRestarts > 0 && attempt > s.cfg.MaxRestarts {
			log.Error("daemon restart budget exhausted", "name", s.cfg.Name, "attempts", attempt-1)
			return
		}

		s.setState(StateBackoff)
		log.Info("restarting daemon", "name", s.cfg.Name, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, s.cfg.MaxRestartDelay)

		for {
			if ctx.Err() != nil {
				s.setState(StateStopped)
				return
			}
			err := s.launch()
			if err == nil {
				break
			}
			log.Error("daemon restart failed", "name", s.cfg.Name, "error", err)
			select {
			case <-ctx.Done():
				s.setState(StateStopped)
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, s.cfg.MaxRestartDelay)
		}

		// Stop may have raced the relaunch.
		if ctx.Err() != nil {
			s.signal(syscall.SIGKILL)
		}
	}
}

func (s *Supervisor) signal(sig syscall.Signal) {
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.getLogger().Warn("signalling daemon failed", "name", s.cfg.Name, "signal", sig.String(), "error", err)
	}
}

// Stop terminates the daemon: SIGTERM to its process group, then SIGKILL
// after GracefulTimeout. Stopping a stopped daemon is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.cancel()
	s.cancel = nil
	cmd := s.cmd
	running := s.state == StateRunning || s.state == StateStarting
	exited := s.exited
	s.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-exited
		s.setState(StateStopped)
		return nil
	}

	pid := cmd.Process.Pid
	log := s.getLogger()
	log.Info("stopping daemon", "name", s.cfg.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		log.Warn("SIGTERM failed", "name", s.cfg.Name, "error", err)
	}

	select {
	case <-exited:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		log.Warn("graceful stop timed out, sending SIGKILL", "name", s.cfg.Name, "timeout", s.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
	}
	<-exited
	return nil
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) fireExit(err error) {
	s.mu.RLock()
	hook := s.onExit
	s.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Running reports whether the daemon process is up.
func (s *Supervisor) Running() bool {
	return s.State() == StateRunning
}

// LastError returns the error from the most recent unexpected exit.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stats returns a snapshot for status reporting.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Name: s.cfg.Name, State: s.state, Restarts: s.restarts}
	if s.state == StateRunning && s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// SetOnExit sets a callback run whenever the daemon exits. err is nil for
// requested stops.
func (s *Supervisor) SetOnExit(callback func(err error)) {
	s.mu.Lock()
	s.onExit = callback
	s.mu.Unlock()
}

// SetLogger sets the logger. A nil logger disables logging.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Supervisor) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

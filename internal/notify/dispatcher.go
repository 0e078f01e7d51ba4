package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// State is the dispatcher worker state.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

// String returns the lowercase state name.
func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Effect is one notification run. It should return promptly once ctx is
// cancelled.
type Effect interface {
	Run(ctx context.Context) error
}

// EffectFunc adapts a function to Effect.
type EffectFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f EffectFunc) Run(ctx context.Context) error { return f(ctx) }

// Logger is the logging contract used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Stats counts dispatcher activity since creation.
type Stats struct {
	State   State  `json:"state"`
	Signals uint64 `json:"signals"`
	Runs    uint64 `json:"runs"`
}

// Dispatcher coalesces signals into effect runs.
//
// Thread Safety:
//   - Signal is safe from any goroutine and never blocks.
type Dispatcher struct {
	effect  Effect
	limiter *rate.Limiter

	wake  chan struct{}
	start sync.Once
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	state   atomic.Int32
	signals atomic.Uint64
	runs    atomic.Uint64

	onRun func(d time.Duration, err error)
	hookMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewDispatcher creates an idle dispatcher. minInterval spaces consecutive
// runs; 0 runs back to back.
func NewDispatcher(effect Effect, minInterval time.Duration) *Dispatcher {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		effect:  effect,
		limiter: rate.NewLimiter(limit, 1),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  noopLogger{},
	}
}

// Signal requests one effect run. Signals that arrive while a run is
// pending collapse into it.
func (d *Dispatcher) Signal() {
	if d.ctx.Err() != nil {
		return
	}
	d.signals.Add(1)
	d.start.Do(func() { go d.loop() })
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}
		d.drain()

		if err := d.limiter.Wait(d.ctx); err != nil {
			return
		}
		// Signals that arrived during pacing belong to this run.
		d.drain()

		d.state.Store(int32(StateRunning))
		started := time.Now()
		err := d.runEffect()
		d.state.Store(int32(StateIdle))
		d.runs.Add(1)

		if err != nil && d.ctx.Err() == nil {
			d.getLogger().Warn("notification effect failed", "error", err)
		}
		d.fireRun(time.Since(started), err)
	}
}

// runEffect runs the effect with panic recovery so a faulty effect cannot
// take the worker down.
func (d *Dispatcher) runEffect() (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.getLogger().Warn("notification effect panic recovered", "panic", r)
			err = fmt.Errorf("%w: %v", ErrEffectPanic, r)
		}
	}()
	return d.effect.Run(d.ctx)
}

func (d *Dispatcher) drain() {
	for {
		select {
		case <-d.wake:
		default:
			return
		}
	}
}

// State reports whether an effect is executing.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns activity counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{State: d.State(), Signals: d.signals.Load(), Runs: d.runs.Load()}
}

// Close stops the worker, cancelling any effect in progress, and waits for
// it to exit. Later signals are ignored.
func (d *Dispatcher) Close() {
	d.cancel()
	started := true
	d.start.Do(func() { started = false })
	if started {
		<-d.done
	}
}

// SetOnRun sets a callback invoked after each effect run.
func (d *Dispatcher) SetOnRun(callback func(d time.Duration, err error)) {
	d.hookMu.Lock()
	d.onRun = callback
	d.hookMu.Unlock()
}

func (d *Dispatcher) fireRun(elapsed time.Duration, err error) {
	d.hookMu.RLock()
	hook := d.onRun
	d.hookMu.RUnlock()
	if hook != nil {
		hook(elapsed, err)
	}
}

// SetLogger sets the logger. A nil logger disables logging.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Dispatcher) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

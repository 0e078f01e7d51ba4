package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
)

// fakeTransport records every call made by the runtime.
type fakeTransport struct {
	mu      sync.Mutex
	cfg     SessionConfig
	sink    func(Event)
	ops     []string
	closed  bool
	connErr error
	pubErr  error
}

func (f *fakeTransport) record(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeTransport) Connect() error {
	f.record("connect")
	return f.connErr
}

func (f *fakeTransport) Subscribe(topic string, _ byte) error {
	f.record("sub " + topic)
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.record("unsub " + topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake: closed")
	}
	f.ops = append(f.ops, "pub "+topic+" "+string(payload))
	return f.pubErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.ops = nil
	f.mu.Unlock()
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) emit(ev Event) {
	f.sink(ev)
}

// fakeFactory hands out a new fakeTransport per session.
type fakeFactory struct {
	mu         sync.Mutex
	sessions   []*fakeTransport
	factoryErr error
	connErr    error
}

func (ff *fakeFactory) New(cfg SessionConfig, sink func(Event)) (Transport, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.factoryErr != nil {
		return nil, ff.factoryErr
	}
	ft := &fakeTransport{cfg: cfg, sink: sink, connErr: ff.connErr}
	ff.sessions = append(ff.sessions, ft)
	return ft, nil
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.sessions)
}

func (ff *fakeFactory) last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.sessions) == 0 {
		return nil
	}
	return ff.sessions[len(ff.sessions)-1]
}

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Signal() { c.n.Add(1) }

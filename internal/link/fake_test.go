package link

import (
	"context"
	"errors"
	"sync"
)

// fakeRadio records calls and answers Connect for networks listed in good.
type fakeRadio struct {
	mu       sync.Mutex
	mgr      *Manager
	started  bool
	cfg      Config
	good     map[string]bool
	ops      []string
	startErr error
	cfgErr   error
	connects int
}

func newFakeRadio(good ...string) *fakeRadio {
	r := &fakeRadio{good: make(map[string]bool)}
	for _, ssid := range good {
		r.good[ssid] = true
	}
	return r
}

func (r *fakeRadio) record(op string) {
	r.ops = append(r.ops, op)
}

func (r *fakeRadio) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *fakeRadio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start")
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *fakeRadio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("stop")
	r.started = false
	return nil
}

func (r *fakeRadio) SetConfig(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("config " + cfg.SSID)
	if r.cfgErr != nil {
		return r.cfgErr
	}
	r.cfg = cfg
	return nil
}

func (r *fakeRadio) Connect() error {
	r.mu.Lock()
	r.record("connect")
	r.connects++
	ok := r.good[r.cfg.SSID]
	mgr := r.mgr
	r.mu.Unlock()

	if ok && mgr != nil {
		go mgr.HandleEvent(Event{Kind: EventGotIP, Address: "192.168.1.50"})
	}
	return nil
}

func (r *fakeRadio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("disconnect")
	if !r.started {
		return errors.New("fake: not started")
	}
	return nil
}

func (r *fakeRadio) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *fakeRadio) connectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

type fakePairing struct {
	mu        sync.Mutex
	ready     bool
	enables   int
	disables  int
	enableErr error
}

func (p *fakePairing) Enable(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enables++
	if p.enableErr != nil {
		return p.enableErr
	}
	p.ready = true
	return nil
}

func (p *fakePairing) Disable(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disables++
	p.ready = false
	return nil
}

func (p *fakePairing) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakePairing) counts() (enables, disables int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enables, p.disables
}

type fakeSession struct {
	mu      sync.Mutex
	running bool
	pauses  int
	resumes int
}

func (s *fakeSession) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	s.running = false
}

func (s *fakeSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	s.running = true
	return nil
}

func (s *fakeSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeSession) counts() (pauses, resumes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses, s.resumes
}

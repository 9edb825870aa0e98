package service

import (
	"sync"

	"fieldnav/internal/ports"
	"fieldnav/internal/software/navigation/engine"
)

// technician is the per-technician slot: one position hub that outlives
// sessions, the current session (if any) and the snapshot subscribers.
type technician struct {
	id  string
	hub *positionHub

	// startMu serializes replacing the current session.
	startMu sync.Mutex

	mu      sync.RWMutex
	current *hostedSession
	subs    map[uint64]func(ports.NavigationView)
	nextSub uint64
}

type hostedSession struct {
	session *engine.Session
	jobID   string
	fwd     *forwarder

	// released guards tearing down the session goroutines exactly once.
	released sync.Once
}

func newTechnician(id string) *technician {
	return &technician{
		id:   id,
		hub:  newPositionHub(),
		subs: make(map[uint64]func(ports.NavigationView)),
	}
}

func (t *technician) active() (*hostedSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.current != nil
}

func (t *technician) setCurrent(h *hostedSession) {
	t.mu.Lock()
	t.current = h
	t.mu.Unlock()
}

// clearCurrent drops h only if it is still the current session.
func (t *technician) clearCurrent(h *hostedSession) {
	t.mu.Lock()
	if t.current == h {
		t.current = nil
	}
	t.mu.Unlock()
}

func (t *technician) subscribe(fn func(ports.NavigationView)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

func (t *technician) notify(v ports.NavigationView) {
	t.mu.RLock()
	fns := make([]func(ports.NavigationView), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Package network owns the process-wide HTTP entry point and connectivity state.
//
// An Environment is created once by the composition root and handed to every
// component that issues HTTP requests or reacts to connectivity changes.
// Swapping its transport changes the behaviour of every client built from it,
// including requests that have been built but not yet dispatched.
package network

import (
	"net/http"
	"sort"
	"sync"
)

// Event is a connectivity notification.
type Event int

const (
	EventOffline Event = iota
	EventOnline
)

func (e Event) String() string {
	switch e {
	case EventOffline:
		return "offline"
	case EventOnline:
		return "online"
	default:
		return "unknown"
	}
}

// Environment is the swappable network seam plus the connectivity flag.
type Environment struct {
	mu        sync.RWMutex
	transport http.RoundTripper
	online    bool

	listenersMu sync.Mutex
	listeners   map[uint64]func(Event)
	nextID      uint64
}

// NewEnvironment creates an online Environment. A nil base uses http.DefaultTransport.
func NewEnvironment(base http.RoundTripper) *Environment {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Environment{
		transport: base,
		online:    true,
		listeners: make(map[uint64]func(Event)),
	}
}

// RoundTrip implements http.RoundTripper by delegating to the current transport.
func (e *Environment) RoundTrip(req *http.Request) (*http.Response, error) {
	return e.Transport().RoundTrip(req)
}

// Client returns an http.Client whose requests go through the seam.
func (e *Environment) Client() *http.Client {
	return &http.Client{Transport: e}
}

// Transport returns the current transport.
func (e *Environment) Transport() http.RoundTripper {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transport
}

// SwapTransport installs rt and returns the transport it replaced.
func (e *Environment) SwapTransport(rt http.RoundTripper) http.RoundTripper {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.transport
	e.transport = rt
	return prev
}

// Online reports the connectivity flag.
func (e *Environment) Online() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

// SetOnline sets the connectivity flag without notifying listeners.
func (e *Environment) SetOnline(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.online = online
}

// Subscribe registers fn for connectivity events and returns its remover.
func (e *Environment) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.listenersMu.Lock()
			defer e.listenersMu.Unlock()
			delete(e.listeners, id)
		})
	}
}

// Dispatch notifies listeners synchronously, in subscription order.
func (e *Environment) Dispatch(ev Event) {
	e.listenersMu.Lock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = e.listeners[id]
	}
	e.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

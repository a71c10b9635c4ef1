// Package offline simulates loss of connectivity for the whole process.
//
// Toggling offline replaces the network seam's transport with one that fails
// every request immediately, flips the connectivity flag and notifies
// listeners; toggling back restores the exact transport that was replaced.
package offline

import (
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/iggydv12/tabsync/internal/network"
	"github.com/iggydv12/tabsync/internal/observe"
)

// ErrFailedToFetch is returned for every request while simulated offline.
var ErrFailedToFetch = errors.New("failed to fetch")

// Simulator flips the process between real and simulated-offline networking.
type Simulator interface {
	// Toggle switches state. A no-op on a NullSimulator.
	Toggle()
	IsOffline() bool
	State() State
	// Offline observes the simulated-offline flag.
	Offline() *observe.Value[bool]
	// Close restores the real transport and connectivity if offline,
	// without dispatching an online event. Idempotent.
	Close() error
}

// New returns a LiveSimulator over env, or a NullSimulator when env is nil.
func New(env *network.Environment, logger *zap.Logger) Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if env == nil {
		return NewNullSimulator()
	}
	return &LiveSimulator{
		env:     env,
		logger:  logger,
		offline: observe.NewValue(false, observe.Equal[bool]),
	}
}

// LiveSimulator drives a network.Environment.
type LiveSimulator struct {
	env    *network.Environment
	logger *zap.Logger

	// toggleMu spans a transition and its notifications, so listeners see
	// events in the order the transitions happened.
	toggleMu sync.Mutex

	mu    sync.Mutex
	state State
	saved http.RoundTripper // set only while offline

	offline *observe.Value[bool]
}

// Toggle implements Simulator. Listeners must not call Toggle or Close.
func (s *LiveSimulator) Toggle() {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	var ev network.Event
	if s.state == StateOnline {
		s.saved = s.env.SwapTransport(failingTransport{})
		s.env.SetOnline(false)
		s.state = StateSimulatedOffline
		ev = network.EventOffline
	} else {
		s.restoreLocked()
		ev = network.EventOnline
	}
	state := s.state
	s.mu.Unlock()

	s.logger.Info("Network simulation toggled", zap.Stringer("state", state))
	s.offline.Set(state == StateSimulatedOffline)
	s.env.Dispatch(ev)
}

// restoreLocked reinstalls the saved transport. Must be called with s.mu held
// while offline.
func (s *LiveSimulator) restoreLocked() {
	if s.saved != nil {
		s.env.SwapTransport(s.saved)
		s.saved = nil
	}
	s.env.SetOnline(true)
	s.state = StateOnline
}

// IsOffline implements Simulator.
func (s *LiveSimulator) IsOffline() bool { return s.State() == StateSimulatedOffline }

// State implements Simulator.
func (s *LiveSimulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offline implements Simulator.
func (s *LiveSimulator) Offline() *observe.Value[bool] { return s.offline }

// Close implements Simulator.
func (s *LiveSimulator) Close() error {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	wasOffline := s.state == StateSimulatedOffline
	if wasOffline {
		s.restoreLocked()
	}
	s.mu.Unlock()

	if wasOffline {
		s.logger.Info("Network simulation closed while offline, real transport restored")
		s.offline.Set(false)
	}
	return nil
}

// NullSimulator is used where no network environment exists.
type NullSimulator struct {
	offline *observe.Value[bool]
}

// NewNullSimulator creates a NullSimulator.
func NewNullSimulator() *NullSimulator {
	return &NullSimulator{offline: observe.NewValue(false, observe.Equal[bool])}
}

func (n *NullSimulator) Toggle()                       {}
func (n *NullSimulator) IsOffline() bool               { return false }
func (n *NullSimulator) State() State                  { return StateOnline }
func (n *NullSimulator) Offline() *observe.Value[bool] { return n.offline }
func (n *NullSimulator) Close() error                  { return nil }

// failingTransport rejects every request before it reaches the network.
type failingTransport struct{}

func (failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		req.Body.Close()
	}
	return nil, ErrFailedToFetch
}

package offline

// State is the simulator's position in its two-state machine.
type State int32

const (
	// StateOnline is the initial state: the real transport is installed.
	StateOnline State = iota
	// StateSimulatedOffline means every request fails and connectivity reads false.
	StateSimulatedOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateSimulatedOffline:
		return "simulated-offline"
	default:
		return "unknown"
	}
}

package node

// NodeState is the lifecycle state of a Controller.
type NodeState int32

const (
	// StateIdle is the state before Run is called.
	StateIdle NodeState = iota
	// StateStarting covers transport bring-up and relay join.
	StateStarting
	// StateRunning means the relay is joined and the REST API is serving.
	StateRunning
	// StateStopping is entered on signal or context cancellation.
	StateStopping
	// StateStopped is terminal.
	StateStopped
)

// IsServing returns true while the node answers requests.
func (s NodeState) IsServing() bool {
	return s == StateRunning
}

func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

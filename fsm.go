package distributor

import (
	"log/slog"
	"sync/atomic"
)

// RunState represents the current state of a distribution run in its lifecycle
type RunState int32

const (
	StateCreated RunState = iota
	StatePartitioning
	StateLaunching
	StateCollecting
	StateCompleted
	StateFailed
)

// String returns a human-readable representation of the run state
func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StatePartitioning:
		return "Partitioning"
	case StateLaunching:
		return "Launching"
	case StateCollecting:
		return "Collecting"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type fsm struct {
	state  atomic.Int32
	logger *slog.Logger
}

func (fsm *fsm) getState() RunState {
	return RunState(fsm.state.Load())
}

func (fsm *fsm) transitionTo(newState RunState) {
	oldState := RunState(fsm.state.Swap(int32(newState)))
	fsm.logger.Debug(logStateTransition, "from", oldState.String(), "to", newState.String())
}

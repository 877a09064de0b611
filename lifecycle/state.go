package lifecycle

import (
	"fmt"
	"sync"

	"github.com/maxpert/regnode/telemetry"
)

// State of a node's lifecycle
type State int32

const (
	StateCreated State = iota
	StateEnvironmentResolving
	StateContextInitializing
	StateSyncingUp
	StateOpenForTraffic
	StateRunning
	StateShuttingDown
	StateShutdown
	StateFailed
)

var allStates = []State{
	StateCreated,
	StateEnvironmentResolving,
	StateContextInitializing,
	StateSyncingUp,
	StateOpenForTraffic,
	StateRunning,
	StateShuttingDown,
	StateShutdown,
	StateFailed,
}

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateEnvironmentResolving:
		return "ENVIRONMENT_RESOLVING"
	case StateContextInitializing:
		return "CONTEXT_INITIALIZING"
	case StateSyncingUp:
		return "SYNCING_UP"
	case StateOpenForTraffic:
		return "OPEN_FOR_TRAFFIC"
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateShutdown:
		return "SHUTDOWN"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// startup reports whether s is a startup stage before Running
func (s State) startup() bool {
	return s >= StateCreated && s < StateRunning
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to State) bool {
	switch to {
	case StateEnvironmentResolving, StateContextInitializing, StateSyncingUp, StateOpenForTraffic, StateRunning:
		return to == from+1
	case StateFailed:
		return from.startup()
	case StateShuttingDown:
		return from != StateShuttingDown && from != StateShutdown
	case StateShutdown:
		return from == StateShuttingDown
	default:
		return false
	}
}

// TransitionError is returned for a transition the state machine forbids
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal lifecycle transition %s -> %s", e.From, e.To)
}

// stateMachine guards the current state
type stateMachine struct {
	mu      sync.Mutex
	current State
}

func newStateMachine() *stateMachine {
	sm := &stateMachine{current: StateCreated}
	sm.record(StateCreated)
	return sm
}

func (sm *stateMachine) get() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

func (sm *stateMachine) transition(to State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}

	sm.current = to
	telemetry.LifecycleTransitionsTotal.With(from.String(), to.String()).Inc()
	sm.record(to)
	return nil
}

func (sm *stateMachine) record(active State) {
	for _, s := range allStates {
		v := 0.0
		if s == active {
			v = 1
		}
		telemetry.LifecycleState.With(s.String()).Set(v)
	}
}

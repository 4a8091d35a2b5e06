package worker

// State is the worker loop's execution state.
type State int

const (
	// StateIdle means the worker is between jobs, claiming or sleeping.
	StateIdle State = iota
	// StateExecuting means a child process is running.
	StateExecuting
	// StateDraining means shutdown was requested; the worker finishes and
	// settles any in-flight job, then exits. Draining is terminal.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Event is an input to the worker state machine.
type Event int

const (
	// EventClaimHit fires when a dispatch attempt returns a job.
	EventClaimHit Event = iota
	// EventClaimMiss fires when nothing was eligible for dispatch.
	EventClaimMiss
	// EventChildExit fires when the in-flight command finishes.
	EventChildExit
	// EventShutdown fires when a termination signal arrives.
	EventShutdown
)

func (e Event) String() string {
	switch e {
	case EventClaimHit:
		return "claim-hit"
	case EventClaimMiss:
		return "claim-miss"
	case EventChildExit:
		return "child-exit"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Next returns the state the worker moves to when ev arrives in state s.
// Shutdown always wins; once draining the worker never leaves it.
func Next(s State, ev Event) State {
	if ev == EventShutdown || s == StateDraining {
		return StateDraining
	}
	switch s {
	case StateIdle:
		if ev == EventClaimHit {
			return StateExecuting
		}
		return StateIdle
	case StateExecuting:
		if ev == EventChildExit {
			return StateIdle
		}
		return StateExecuting
	default:
		return s
	}
}

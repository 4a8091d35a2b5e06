package store

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateDead       State = "dead"
)

// States lists all valid job states in lifecycle order.
var States = []State{StatePending, StateProcessing, StateCompleted, StateDead}

// ParseState validates a user-supplied state name.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePending, StateProcessing, StateCompleted, StateDead:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown state %q (want one of pending, processing, completed, dead)", s)
}

// Job is a unit of work: an opaque shell command with retry bookkeeping.
// A processing job is owned by exactly one worker; completed and dead are
// terminal except for an explicit DLQ requeue.
type Job struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	RunAt      time.Time `json:"run_at"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  *string   `json:"last_error,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
}

// Summary holds per-state job counts for status reporting.
type Summary struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Dead       int `json:"dead"`
}

// Count returns the count for a single state.
func (s Summary) Count(state State) int {
	switch state {
	case StatePending:
		return s.Pending
	case StateProcessing:
		return s.Processing
	case StateCompleted:
		return s.Completed
	case StateDead:
		return s.Dead
	}
	return 0
}

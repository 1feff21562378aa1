package domain

import "fmt"

// State is a position in the single-pass request lifecycle.
type State string

const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StateExecuting State = "executing"
	StateLocated   State = "located"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
	StateResponded State = "responded"
)

var transitions = map[State][]State{
	StateReceived:  {StateValidated, StateFailed},
	StateValidated: {StateExecuting, StateFailed},
	StateExecuting: {StateLocated, StateTimedOut, StateFailed},
	StateLocated:   {StateResponded},
	StateTimedOut:  {StateResponded},
	StateFailed:    {StateResponded},
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Lifecycle tracks one request through its states. It is not safe for
// concurrent use; each request owns its own Lifecycle.
type Lifecycle struct {
	current State
	path    []State
}

// NewLifecycle starts a lifecycle in StateReceived.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{current: StateReceived, path: []State{StateReceived}}
}

// Current returns the current state.
func (l *Lifecycle) Current() State { return l.current }

// Path returns every state visited so far.
func (l *Lifecycle) Path() []State {
	out := make([]State, len(l.path))
	copy(out, l.path)
	return out
}

// Advance moves to next, rejecting transitions the lifecycle does not allow.
func (l *Lifecycle) Advance(next State) error {
	if !l.current.CanTransition(next) {
		return fmt.Errorf("illegal state transition %s -> %s", l.current, next)
	}
	l.current = next
	l.path = append(l.path, next)
	return nil
}

// StateForStatus maps a terminal execution status to the state reached after executing.
func StateForStatus(s ExecutionStatus) State {
	switch s {
	case StatusOK:
		return StateLocated
	case StatusTimeout:
		return StateTimedOut
	default:
		return StateFailed
	}
}

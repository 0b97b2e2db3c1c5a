package reader

import "fmt"

// State is the playback state of the engine.
type State int

const (
	// Idle means no session is running.
	Idle State = iota
	// Playing means a session is reading the queue.
	Playing
	// Paused means a session is held in place.
	Paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Playing, Paused} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Active reports whether a session owns the state.
func (s State) Active() bool {
	return s == Playing || s == Paused
}

var transitions = map[State][]State{
	Idle:    {Playing},
	Playing: {Paused, Idle, Playing},
	Paused:  {Playing, Idle},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateMachine enforces the transition table.
type stateMachine struct {
	current  State
	onChange func(from, to State)
}

// Transition moves to to when the table allows it.
func (sm *stateMachine) Transition(to State) bool {
	if !CanTransition(sm.current, to) {
		return false
	}
	from := sm.current
	sm.current = to
	if sm.onChange != nil && from != to {
		sm.onChange(from, to)
	}
	return true
}

// Current returns the current state.
func (sm *stateMachine) Current() State {
	return sm.current
}

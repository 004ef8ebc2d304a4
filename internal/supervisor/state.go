package supervisor

import "fmt"

// State is a step of the supervisor loop.
type State string

const (
	StateChecking   State = "checking"
	StateRunning    State = "running"
	StatePrompting  State = "prompting"
	StateRestarting State = "restarting"
	StateExiting    State = "exiting"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[State]map[State]bool{
	StateChecking: {
		StateRunning: true, // environment present
		StateExiting: true, // environment missing, exit 1
	},
	StateRunning: {
		StatePrompting: true, // always, once the child exits
	},
	StatePrompting: {
		StateRestarting: true,
		StateExiting:    true,
	},
	StateRestarting: {
		StateRunning: true,
	},
	// Terminal
	StateExiting: {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to State) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateExiting
}

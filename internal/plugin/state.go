package plugin

// State is the lifecycle state of a loaded plugin.
type State int

// Plugin states.
const (
	// StateUnregistered - not known to the manager.
	StateUnregistered State = iota

	// StateRegistered - in the plugin table, no callback has run.
	StateRegistered

	// StatePreInitialized - PreInitialize returned.
	StatePreInitialized

	// StateInitialized - Initialize returned; events are delivered.
	StateInitialized

	// StateActive - ticking.
	StateActive

	// StateInactive - stopped on request.
	StateInactive

	// StateCrashed - a callback failed. Terminal.
	StateCrashed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StatePreInitialized:
		return "pre-initialized"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// transitions lists the legal successors of each state. Crashed is reachable
// from every non-terminal state and is handled separately.
var transitions = map[State][]State{
	StateUnregistered:   {StateRegistered},
	StateRegistered:     {StatePreInitialized, StateInactive},
	StatePreInitialized: {StateInitialized, StateInactive},
	StateInitialized:    {StateActive, StateInactive},
	StateActive:         {StateInactive},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateCrashed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
// A stopped or crashed plugin only comes back through Reload, under a new id.
func (s State) IsTerminal() bool {
	return s == StateInactive || s == StateCrashed
}

// ReceivesEvents reports whether HandleEvent may be called in this state.
func (s State) ReceivesEvents() bool {
	return s == StateInitialized || s == StateActive
}

// Status is the coarse, externally reported plugin state.
type Status string

// Plugin statuses.
const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusCrash    Status = "CRASH"
)

// Status maps the state to its coarse status.
func (s State) Status() Status {
	switch s {
	case StateActive:
		return StatusActive
	case StateCrashed:
		return StatusCrash
	default:
		return StatusInactive
	}
}

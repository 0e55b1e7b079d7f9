package hsm

// State defines a state in the machine
type State struct {
	ID           StateID
	Parent       StateID   // Empty for root states
	Type         StateType // Normal, Condition, Final
	DefaultChild StateID   // Auto-enter this child on entry

	OnEnter func(ctx *Context) error
	OnExit  func(ctx *Context) error

	// During sees every event while the state is active, before transitions
	// are looked up. It returns what is left of the event; Consumed stops
	// processing.
	During func(ctx *Context) Event

	// For condition states: evaluated on entry to determine next state
	Condition func(ctx *Context) StateID

	// Timers stopped when the state is exited
	Timers []*Timer
}

// StateOption is a functional option for configuring a State
type StateOption func(*State)

// WithParent sets the parent state for hierarchy
func WithParent(parent StateID) StateOption {
	return func(s *State) {
		s.Parent = parent
	}
}

// WithDefaultChild sets the default child state to auto-enter
func WithDefaultChild(child StateID) StateOption {
	return func(s *State) {
		s.DefaultChild = child
	}
}

// WithOnEnter sets the entry action for the state
func WithOnEnter(fn func(*Context) error) StateOption {
	return func(s *State) {
		s.OnEnter = fn
	}
}

// WithOnExit sets the exit action for the state
func WithOnExit(fn func(*Context) error) StateOption {
	return func(s *State) {
		s.OnExit = fn
	}
}

// WithDuring sets the in-state hook, typically used to forward events
// to a nested machine.
func WithDuring(fn func(*Context) Event) StateOption {
	return func(s *State) {
		s.During = fn
	}
}

// WithTimer ties a timer to the state; it is stopped on exit
func WithTimer(t *Timer) StateOption {
	return func(s *State) {
		s.Timers = append(s.Timers, t)
	}
}

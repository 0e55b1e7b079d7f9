package hsm

// Transition defines a state change rule
type Transition struct {
	From   StateID // Source state (or "*" for any-state)
	Event  EventID // Triggering event
	To     StateID // Target state, empty for internal transitions
	Guards []func(ctx *Context) bool
	Action func(ctx *Context) error

	// Internal transitions run their action without leaving the state
	Internal bool
}

// WildcardState matches any state in transition rules
const WildcardState StateID = "*"

// TransitionOption is a functional option for configuring a Transition
type TransitionOption func(*Transition)

// WithGuard adds a guard condition. All guards must pass.
func WithGuard(fn func(*Context) bool) TransitionOption {
	return func(t *Transition) {
		t.Guards = append(t.Guards, fn)
	}
}

// WithGuards adds multiple guard conditions that must ALL pass (AND logic)
func WithGuards(guards ...func(*Context) bool) TransitionOption {
	return func(t *Transition) {
		t.Guards = append(t.Guards, guards...)
	}
}

// WithAction sets an action to execute during the transition
func WithAction(fn func(*Context) error) TransitionOption {
	return func(t *Transition) {
		t.Action = fn
	}
}

// OnTimer restricts a timeout transition to the given timer.
func OnTimer(timer *Timer) TransitionOption {
	return WithGuard(func(c *Context) bool {
		return c.Event.Param == timer.ID()
	})
}

// WithParam restricts the transition to events carrying param.
func WithParam(param int) TransitionOption {
	return WithGuard(func(c *Context) bool {
		return c.Event.Param == param
	})
}

func (t *Transition) allowed(ctx *Context) bool {
	for _, g := range t.Guards {
		if !g(ctx) {
			return false
		}
	}
	return true
}

package hsm

import "log/slog"

// Context is passed to all state handlers and provides access to FSM operations
type Context struct {
	Machine   *Machine
	Event     Event   // Event being processed (EventEntry/EventExit inside entry and exit actions)
	Trigger   Event   // Event that caused the current transition
	FromState StateID // State we're transitioning from
	ToState   StateID // State we're transitioning to
	Logger    *slog.Logger
}

// CurrentState returns the current active state
func (c *Context) CurrentState() StateID {
	return c.Machine.State()
}

// IsInState checks if the given state is current or an ancestor of current
func (c *Context) IsInState(id StateID) bool {
	return c.Machine.IsInState(id)
}

// Return hands ev back to the caller of Handle in place of Consumed.
// A nested machine uses it to report an outcome to its parent.
func (c *Context) Return(ev Event) {
	c.Machine.ret = &ev
}

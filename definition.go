package hsm

import (
	"fmt"
)

// Definition holds the FSM structure before building a Machine
type Definition struct {
	name        string
	states      map[StateID]*State
	order       []StateID
	transitions []Transition
	initial     StateID
}

// NewDefinition creates a new FSM definition builder. The name shows up in
// log records of machines built from it.
func NewDefinition(name string) *Definition {
	return &Definition{
		name:        name,
		states:      make(map[StateID]*State),
		transitions: make([]Transition, 0),
	}
}

func (d *Definition) add(s *State, opts []StateOption) *Definition {
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := d.states[s.ID]; !ok {
		d.order = append(d.order, s.ID)
	}
	d.states[s.ID] = s
	return d
}

// State adds a normal state to the definition
func (d *Definition) State(id StateID, opts ...StateOption) *Definition {
	return d.add(&State{ID: id, Type: StateNormal}, opts)
}

// ConditionState adds a condition pseudo-state that evaluates immediately on entry
func (d *Definition) ConditionState(id StateID, cond func(*Context) StateID, opts ...StateOption) *Definition {
	return d.add(&State{ID: id, Type: StateCondition, Condition: cond}, opts)
}

// FinalState adds a terminal state with no outgoing transitions
func (d *Definition) FinalState(id StateID, opts ...StateOption) *Definition {
	return d.add(&State{ID: id, Type: StateFinal}, opts)
}

// Transition adds a transition rule
func (d *Definition) Transition(from StateID, event EventID, to StateID, opts ...TransitionOption) *Definition {
	t := Transition{
		From:  from,
		Event: event,
		To:    to,
	}
	for _, opt := range opts {
		opt(&t)
	}
	d.transitions = append(d.transitions, t)
	return d
}

// Internal adds a transition that consumes the event and runs its action
// without exiting or entering any state.
func (d *Definition) Internal(from StateID, event EventID, opts ...TransitionOption) *Definition {
	t := Transition{
		From:     from,
		Event:    event,
		Internal: true,
	}
	for _, opt := range opts {
		opt(&t)
	}
	d.transitions = append(d.transitions, t)
	return d
}

// Timeout adds a transition taken when the given timer expires
func (d *Definition) Timeout(from StateID, timer *Timer, to StateID, opts ...TransitionOption) *Definition {
	return d.Transition(from, EventTimeout, to, append([]TransitionOption{OnTimer(timer)}, opts...)...)
}

// AnyStateTransition adds a transition that can fire from any state
func (d *Definition) AnyStateTransition(event EventID, to StateID, opts ...TransitionOption) *Definition {
	return d.Transition(WildcardState, event, to, opts...)
}

// Initial sets the initial state
func (d *Definition) Initial(id StateID) *Definition {
	d.initial = id
	return d
}

// States lists the declared states in declaration order
func (d *Definition) States() []StateID {
	return append([]StateID(nil), d.order...)
}

// Validate checks the definition for errors
func (d *Definition) Validate() error {
	if d.initial == "" {
		return fmt.Errorf("no initial state defined")
	}

	if _, ok := d.states[d.initial]; !ok {
		return fmt.Errorf("initial state %q not defined", d.initial)
	}

	// Check all parent references are valid
	for _, id := range d.order {
		state := d.states[id]
		if state.Parent != "" {
			if _, ok := d.states[state.Parent]; !ok {
				return fmt.Errorf("state %q references undefined parent %q", id, state.Parent)
			}
		}
		if state.DefaultChild != "" {
			child, ok := d.states[state.DefaultChild]
			if !ok {
				return fmt.Errorf("state %q references undefined default child %q", id, state.DefaultChild)
			}
			if child.Parent != id {
				return fmt.Errorf("default child %q of %q is not its child", state.DefaultChild, id)
			}
		}
		if state.Type == StateCondition && state.Condition == nil {
			return fmt.Errorf("condition state %q has no condition function", id)
		}
	}

	// Check all transition endpoints are valid
	for _, t := range d.transitions {
		if t.From != WildcardState {
			from, ok := d.states[t.From]
			if !ok {
				return fmt.Errorf("transition from undefined state %q", t.From)
			}
			if from.Type == StateFinal {
				return fmt.Errorf("transition on %q out of final state %q", t.Event, t.From)
			}
		}
		if t.Internal {
			continue
		}
		if _, ok := d.states[t.To]; !ok {
			return fmt.Errorf("transition to undefined state %q", t.To)
		}
	}

	// Check for cycles in parent hierarchy
	for _, id := range d.order {
		if err := d.checkParentCycle(id); err != nil {
			return err
		}
	}

	return nil
}

func (d *Definition) checkParentCycle(id StateID) error {
	visited := make(map[StateID]bool)
	current := id
	for current != "" {
		if visited[current] {
			return fmt.Errorf("cycle detected in parent hierarchy at state %q", current)
		}
		visited[current] = true
		state := d.states[current]
		if state == nil {
			break
		}
		current = state.Parent
	}
	return nil
}

// Build creates a Machine from the definition
func (d *Definition) Build(opts ...MachineOption) (*Machine, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", d.name, err)
	}

	m := &Machine{
		name:       d.name,
		definition: d,
		logger:     Logger,
	}

	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("machine", d.name)
	m.setCurrent("")

	return m, nil
}

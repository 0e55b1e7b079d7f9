package hsm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Machine is the runtime FSM instance. Start, Stop and Handle must be called
// from a single goroutine (the dispatcher); State and IsInState are safe to
// call from anywhere.
type Machine struct {
	name       string
	definition *Definition
	current    atomic.Value // StateID
	running    atomic.Bool

	logger              *slog.Logger
	stateChangeCallback func(from, to StateID)

	// set by Context.Return while an event is processed
	ret *Event
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithLogger sets the logger for the machine. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStateChangeCallback sets a callback invoked after each state change
func WithStateChangeCallback(fn func(from, to StateID)) MachineOption {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}

// OnStateChange sets a callback invoked after each state change.
// Can be called after Build() but before Start().
func (m *Machine) OnStateChange(fn func(from, to StateID)) {
	m.stateChangeCallback = fn
}

// Name returns the definition name
func (m *Machine) Name() string {
	return m.name
}

// State returns the current leaf state, empty when stopped
func (m *Machine) State() StateID {
	return m.current.Load().(StateID)
}

// Running reports whether the machine has been started and not stopped
func (m *Machine) Running() bool {
	return m.running.Load()
}

// IsInState checks if the given state is the current state or an ancestor
func (m *Machine) IsInState(id StateID) bool {
	for current := m.State(); current != ""; current = m.parent(current) {
		if current == id {
			return true
		}
	}
	return false
}

func (m *Machine) setCurrent(id StateID) {
	m.current.Store(id)
}

func (m *Machine) parent(id StateID) StateID {
	if s := m.definition.states[id]; s != nil {
		return s.Parent
	}
	return ""
}

// Start enters the initial state. ev is visible to entry actions as the
// trigger.
func (m *Machine) Start(ev Event) error {
	if m.running.Load() {
		return fmt.Errorf("machine %s already running", m.name)
	}
	m.running.Store(true)
	m.ret = nil

	m.logger.Debug("starting", "initial", m.definition.initial)
	plan := m.enterPlan(m.definition.initial, "")
	if err := m.run(plan, ev); err != nil {
		return fmt.Errorf("failed to enter initial state: %w", err)
	}
	m.notify("", m.State())
	return nil
}

// Stop runs the exit actions of the active configuration, innermost first.
func (m *Machine) Stop() error {
	if !m.running.Load() {
		return nil
	}
	from := m.State()
	m.logger.Debug("stopping", "state", from)

	var plan []step
	for id := from; id != ""; id = m.parent(id) {
		plan = append(plan, step{kind: stepExit, state: id})
	}
	err := m.run(plan, Event{ID: EventExit})
	m.running.Store(false)
	m.setCurrent("")
	if err != nil {
		return fmt.Errorf("stop %s: %w", m.name, err)
	}
	return nil
}

// Handle processes one event to completion. It returns Consumed when the
// event was used, the event itself when nothing handled it, or whatever an
// action handed back through Context.Return.
func (m *Machine) Handle(ev Event) (Event, error) {
	if !m.running.Load() {
		return ev, ErrNotRunning
	}
	m.ret = nil

	current := m.State()
	m.logger.Debug("processing event", "event", ev.ID, "param", ev.Param, "state", current)

	if s := m.definition.states[current]; s != nil && s.Type == StateFinal {
		return ev, nil
	}

	// In-state hooks, innermost first
	for id := current; id != ""; id = m.parent(id) {
		s := m.definition.states[id]
		if s == nil || s.During == nil {
			continue
		}
		ev = s.During(m.makeContext(ev, ev, id, id))
		if ev.IsNone() {
			return m.result(), nil
		}
	}

	t := m.findTransition(ev)
	if t == nil {
		m.logger.Debug("no transition found", "event", ev.ID, "state", current)
		return ev, nil
	}

	var plan []step
	if t.Internal {
		m.logger.Debug("internal transition", "event", ev.ID, "state", current)
		if t.Action != nil {
			plan = []step{{kind: stepAction, action: t.Action, from: current, to: current}}
		}
	} else {
		m.logger.Debug("executing transition", "event", ev.ID, "from", current, "to", t.To)
		plan = m.transitionPlan(current, t.To, t.Action)
	}

	if err := m.run(plan, ev); err != nil {
		return ev, fmt.Errorf("%s on %s: %w", m.name, ev.ID, err)
	}
	if to := m.State(); to != current {
		m.notify(current, to)
	}
	return m.result(), nil
}

func (m *Machine) result() Event {
	if m.ret != nil {
		return *m.ret
	}
	return Consumed
}

func (m *Machine) notify(from, to StateID) {
	if m.stateChangeCallback != nil {
		m.stateChangeCallback(from, to)
	}
}

// findTransition returns the first enabled transition for the event.
// Priority order: current state, then ancestors, then wildcards.
func (m *Machine) findTransition(ev Event) *Transition {
	ts := m.definition.transitions
	for id := m.State(); id != ""; id = m.parent(id) {
		for i := range ts {
			t := &ts[i]
			if t.Event != ev.ID || t.From != id {
				continue
			}
			if t.allowed(m.makeContext(ev, ev, id, t.To)) {
				return t
			}
			m.logger.Debug("guard rejected transition", "event", ev.ID, "from", t.From, "to", t.To)
		}
	}
	for i := range ts {
		t := &ts[i]
		if t.Event == ev.ID && t.From == WildcardState && t.allowed(m.makeContext(ev, ev, m.State(), t.To)) {
			return t
		}
	}
	return nil
}

type stepKind int

const (
	stepExit stepKind = iota
	stepAction
	stepEnter
)

// step is one unit of a transition plan
type step struct {
	kind   stepKind
	state  StateID
	action func(*Context) error
	from   StateID
	to     StateID
}

var errUnsettled = errors.New("transition did not settle")

// run executes a plan as a worklist. Entering the last state of a plan may
// extend it: condition states plan their way out, composite states plan
// entry of their default child.
func (m *Machine) run(plan []step, trigger Event) error {
	budget := 16 * (len(m.definition.states) + 1)
	for len(plan) > 0 {
		if budget--; budget < 0 {
			return errUnsettled
		}
		s := plan[0]
		plan = plan[1:]

		switch s.kind {
		case stepExit:
			if err := m.exitState(s.state, trigger); err != nil {
				return err
			}
		case stepAction:
			if err := s.action(m.makeContext(trigger, trigger, s.from, s.to)); err != nil {
				return fmt.Errorf("transition action failed: %w", err)
			}
		case stepEnter:
			if err := m.enterState(s.state, s.from, trigger); err != nil {
				return err
			}
			if len(plan) == 0 {
				plan = m.settle(s.state, trigger)
			}
		}
	}
	return nil
}

// settle plans what follows entry of a target state
func (m *Machine) settle(id StateID, trigger Event) []step {
	state := m.definition.states[id]
	if state.Type == StateCondition {
		next := state.Condition(m.makeContext(trigger, trigger, id, ""))
		if next == "" {
			m.logger.Warn("condition state chose no target", "state", id)
			return nil
		}
		return m.transitionPlan(id, next, nil)
	}
	if state.DefaultChild != "" {
		return []step{{kind: stepEnter, state: state.DefaultChild, from: id}}
	}
	return nil
}

// transitionPlan lists the exits, action and entries of an external
// transition between two states.
func (m *Machine) transitionPlan(from, to StateID, action func(*Context) error) []step {
	lca := m.findLCA(from, to)
	if lca == to {
		// re-entering the target (self or ancestor transition)
		lca = m.parent(to)
	}

	var plan []step
	for id := from; id != "" && id != lca; id = m.parent(id) {
		plan = append(plan, step{kind: stepExit, state: id})
	}
	if action != nil {
		plan = append(plan, step{kind: stepAction, action: action, from: from, to: to})
	}
	prev := from
	for _, id := range m.pathFromAncestor(to, lca) {
		plan = append(plan, step{kind: stepEnter, state: id, from: prev})
		prev = id
	}
	return plan
}

func (m *Machine) enterPlan(target StateID, from StateID) []step {
	var plan []step
	prev := from
	for _, id := range m.pathFromAncestor(target, "") {
		plan = append(plan, step{kind: stepEnter, state: id, from: prev})
		prev = id
	}
	return plan
}

// findLCA finds the least common ancestor of two states
func (m *Machine) findLCA(a, b StateID) StateID {
	if a == b {
		return a
	}

	ancestorsA := make(map[StateID]bool)
	for current := a; current != ""; current = m.parent(current) {
		ancestorsA[current] = true
	}

	for current := b; current != ""; current = m.parent(current) {
		if ancestorsA[current] {
			return current
		}
	}
	return "" // Root
}

// pathFromAncestor returns the path from ancestor to target (excluding ancestor)
func (m *Machine) pathFromAncestor(target StateID, ancestor StateID) []StateID {
	var path []StateID
	for current := target; current != "" && current != ancestor; current = m.parent(current) {
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func (m *Machine) enterState(id StateID, from StateID, trigger Event) error {
	state := m.definition.states[id]
	if state == nil {
		return fmt.Errorf("state %q not found", id)
	}

	m.logger.Debug("entering state", "state", id, "type", state.Type)
	m.setCurrent(id)

	if state.OnEnter != nil {
		if err := state.OnEnter(m.makeContext(Event{ID: EventEntry}, trigger, from, id)); err != nil {
			return fmt.Errorf("entry action failed for %q: %w", id, err)
		}
	}
	return nil
}

func (m *Machine) exitState(id StateID, trigger Event) error {
	state := m.definition.states[id]
	if state == nil {
		return nil
	}

	m.logger.Debug("exiting state", "state", id)

	for _, t := range state.Timers {
		t.Stop()
	}

	if state.OnExit != nil {
		if err := state.OnExit(m.makeContext(Event{ID: EventExit}, trigger, id, "")); err != nil {
			return fmt.Errorf("exit action failed for %q: %w", id, err)
		}
	}
	m.setCurrent(state.Parent)
	return nil
}

// makeContext creates a context for callbacks
func (m *Machine) makeContext(ev, trigger Event, from, to StateID) *Context {
	return &Context{
		Machine:   m,
		Event:     ev,
		Trigger:   trigger,
		FromState: from,
		ToState:   to,
		Logger:    m.logger,
	}
}

package hsm

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

// Test states
const (
	stateA      StateID = "a"
	stateB      StateID = "b"
	stateC      StateID = "c"
	stateParent StateID = "parent"
	stateChild1 StateID = "child1"
	stateChild2 StateID = "child2"
	stateOther  StateID = "other"
	stateCond   StateID = "condition"
	stateFinal  StateID = "final"
)

// Test events
const (
	evGo   EventID = "go"
	evBack EventID = "back"
	evNext EventID = "next"
	evDone EventID = "done"
)

func startMachine(t *testing.T, def *Definition, opts ...MachineOption) *Machine {
	t.Helper()
	m, err := def.Build(opts...)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := m.Start(Event{ID: EventInit}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return m
}

func send(t *testing.T, m *Machine, id EventID) Event {
	t.Helper()
	out, err := m.Handle(Event{ID: id})
	if err != nil {
		t.Fatalf("handle %s failed: %v", id, err)
	}
	return out
}

// trace records callback order
type trace []string

func (tr *trace) enter(name string) func(*Context) error {
	return func(c *Context) error {
		*tr = append(*tr, "enter "+name)
		return nil
	}
}

func (tr *trace) exit(name string) func(*Context) error {
	return func(c *Context) error {
		*tr = append(*tr, "exit "+name)
		return nil
	}
}

func (tr *trace) action(name string) func(*Context) error {
	return func(c *Context) error {
		*tr = append(*tr, name)
		return nil
	}
}

func TestBasicTransition(t *testing.T) {
	def := NewDefinition("basic").
		State(stateA).
		State(stateB).
		Transition(stateA, evGo, stateB).
		Transition(stateB, evBack, stateA).
		Initial(stateA)

	m := startMachine(t, def)

	if m.State() != stateA {
		t.Errorf("expected state %s, got %s", stateA, m.State())
	}

	if out := send(t, m, evGo); !out.IsNone() {
		t.Errorf("handled event returned %v, want consumed", out)
	}
	if m.State() != stateB {
		t.Errorf("expected state %s, got %s", stateB, m.State())
	}

	send(t, m, evBack)
	if m.State() != stateA {
		t.Errorf("expected state %s, got %s", stateA, m.State())
	}
}

func TestUnhandledEventPassesThrough(t *testing.T) {
	def := NewDefinition("passthrough").
		State(stateA).
		State(stateB).
		Transition(stateA, evGo, stateB).
		Initial(stateA)

	m := startMachine(t, def)

	ev := Event{ID: evNext, Param: 7}
	out, err := m.Handle(ev)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if out != ev {
		t.Errorf("unhandled event returned %v, want %v", out, ev)
	}
	if m.State() != stateA {
		t.Errorf("state changed to %s", m.State())
	}
}

func TestEntryExitActions(t *testing.T) {
	var tr trace

	def := NewDefinition("entry-exit").
		State(stateA,
			WithOnEnter(tr.enter("a")),
			WithOnExit(tr.exit("a")),
		).
		State(stateB,
			WithOnEnter(tr.enter("b")),
			WithOnExit(tr.exit("b")),
		).
		Transition(stateA, evGo, stateB, WithAction(tr.action("go"))).
		Initial(stateA)

	m := startMachine(t, def)
	send(t, m, evGo)

	want := trace{"enter a", "exit a", "go", "enter b"}
	if !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}

	tr = nil
	if err := m.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !slices.Equal(tr, trace{"exit b"}) {
		t.Errorf("stop ran %v", tr)
	}
	if m.Running() || m.State() != "" {
		t.Errorf("stopped machine running=%v state=%q", m.Running(), m.State())
	}
}

func TestSelfTransitionReenters(t *testing.T) {
	var tr trace

	def := NewDefinition("self").
		State(stateA,
			WithOnEnter(tr.enter("a")),
			WithOnExit(tr.exit("a")),
		).
		Transition(stateA, evGo, stateA).
		Initial(stateA)

	m := startMachine(t, def)
	tr = nil
	send(t, m, evGo)

	if want := (trace{"exit a", "enter a"}); !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}
}

func TestGuard(t *testing.T) {
	allowed := false

	def := NewDefinition("guard").
		State(stateA).
		State(stateB).
		State(stateC).
		Transition(stateA, evGo, stateB,
			WithGuard(func(c *Context) bool { return allowed }),
		).
		Transition(stateA, evGo, stateC).
		Initial(stateA)

	m := startMachine(t, def)

	// Guard fails, the next rule matches
	send(t, m, evGo)
	if m.State() != stateC {
		t.Errorf("expected state %s after rejected guard, got %s", stateC, m.State())
	}

	allowed = true
	m2 := startMachine(t, def)
	send(t, m2, evGo)
	if m2.State() != stateB {
		t.Errorf("expected state %s after passing guard, got %s", stateB, m2.State())
	}
}

func TestGuardsAreANDed(t *testing.T) {
	first, second := true, false

	def := NewDefinition("guards").
		State(stateA).
		State(stateB).
		Transition(stateA, evGo, stateB,
			WithGuard(func(c *Context) bool { return first }),
			WithGuards(func(c *Context) bool { return second }),
		).
		Initial(stateA)

	m := startMachine(t, def)
	send(t, m, evGo)
	if m.State() != stateA {
		t.Errorf("transition taken with one guard failing")
	}

	second = true
	send(t, m, evGo)
	if m.State() != stateB {
		t.Errorf("expected state %s, got %s", stateB, m.State())
	}
}

func TestWithParam(t *testing.T) {
	def := NewDefinition("param").
		State(stateA).
		State(stateB).
		Transition(stateA, evGo, stateB, WithParam(3)).
		Initial(stateA)

	m := startMachine(t, def)

	if _, err := m.Handle(Event{ID: evGo, Param: 2}); err != nil {
		t.Fatal(err)
	}
	if m.State() != stateA {
		t.Errorf("wrong param moved the machine to %s", m.State())
	}
	if _, err := m.Handle(Event{ID: evGo, Param: 3}); err != nil {
		t.Fatal(err)
	}
	if m.State() != stateB {
		t.Errorf("expected state %s, got %s", stateB, m.State())
	}
}

func TestHierarchicalStates(t *testing.T) {
	var tr trace

	def := NewDefinition("hierarchy").
		State(stateParent,
			WithDefaultChild(stateChild1),
			WithOnEnter(tr.enter("parent")),
			WithOnExit(tr.exit("parent")),
		).
		State(stateChild1,
			WithParent(stateParent),
			WithOnEnter(tr.enter("child1")),
			WithOnExit(tr.exit("child1")),
		).
		State(stateChild2,
			WithParent(stateParent),
			WithOnEnter(tr.enter("child2")),
			WithOnExit(tr.exit("child2")),
		).
		State(stateB, WithOnEnter(tr.enter("b"))).
		Transition(stateChild1, evNext, stateChild2).
		Transition(stateParent, evGo, stateB). // Transition from parent applies to children
		Transition(stateB, evBack, stateChild2).
		Initial(stateParent)

	m := startMachine(t, def)

	// Should have entered parent then child1
	if want := (trace{"enter parent", "enter child1"}); !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}
	if !m.IsInState(stateParent) || !m.IsInState(stateChild1) {
		t.Error("should be in parent and child1")
	}
	if m.IsInState(stateChild2) {
		t.Error("should not be in child2")
	}

	// Transition within parent (child1 -> child2) keeps the parent
	tr = nil
	send(t, m, evNext)
	if want := (trace{"exit child1", "enter child2"}); !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}

	// Inherited transition leaves child and parent
	tr = nil
	send(t, m, evGo)
	if want := (trace{"exit child2", "exit parent", "enter b"}); !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}

	// Entering a nested state directly enters its ancestors first
	tr = nil
	send(t, m, evBack)
	if want := (trace{"enter parent", "enter child2"}); !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}
}

func TestChildTransitionOverridesParent(t *testing.T) {
	def := NewDefinition("override").
		State(stateParent, WithDefaultChild(stateChild1)).
		State(stateChild1, WithParent(stateParent)).
		State(stateB).
		State(stateC).
		Transition(stateParent, evGo, stateB).
		Transition(stateChild1, evGo, stateC).
		Initial(stateParent)

	m := startMachine(t, def)
	send(t, m, evGo)
	if m.State() != stateC {
		t.Errorf("expected state %s, got %s", stateC, m.State())
	}
}

func TestConditionState(t *testing.T) {
	var goToB bool
	var tr trace

	def := NewDefinition("condition").
		State(stateA).
		ConditionState(stateCond, func(c *Context) StateID {
			if goToB {
				return stateB
			}
			return stateC
		}, WithOnEnter(tr.enter("cond")), WithOnExit(tr.exit("cond"))).
		State(stateB).
		State(stateC, WithOnEnter(tr.enter("c"))).
		Transition(stateA, evGo, stateCond).
		Transition(stateC, evBack, stateA).
		Initial(stateA)

	m := startMachine(t, def)

	// Condition routes to C
	send(t, m, evGo)
	if m.State() != stateC {
		t.Errorf("expected state %s, got %s", stateC, m.State())
	}
	if want := (trace{"enter cond", "exit cond", "enter c"}); !slices.Equal(tr, want) {
		t.Errorf("expected %v, got %v", want, tr)
	}

	send(t, m, evBack)
	goToB = true
	send(t, m, evGo)
	if m.State() != stateB {
		t.Errorf("expected state %s, got %s", stateB, m.State())
	}
}

func TestConditionLoopDoesNotSettle(t *testing.T) {
	def := NewDefinition("loop").
		State(stateA).
		ConditionState(stateCond, func(c *Context) StateID { return stateCond }).
		Transition(stateA, evGo, stateCond).
		Initial(stateA)

	m := startMachine(t, def)
	if _, err := m.Handle(Event{ID: evGo}); !errors.Is(err, errUnsettled) {
		t.Errorf("expected unsettled error, got %v", err)
	}
}

func TestFinalState(t *testing.T) {
	entered := 0

	def := NewDefinition("final").
		State(stateA).
		FinalState(stateFinal, WithOnEnter(func(c *Context) error {
			entered++
			return nil
		})).
		Transition(stateA, evDone, stateFinal).
		AnyStateTransition(evGo, stateA).
		Initial(stateA)

	m := startMachine(t, def)
	send(t, m, evDone)

	ev := Event{ID: evGo}
	out, err := m.Handle(ev)
	if err != nil {
		t.Fatal(err)
	}
	if out != ev || m.State() != stateFinal {
		t.Errorf("final state left on %v (state %s)", out, m.State())
	}
	if entered != 1 {
		t.Errorf("final state entered %d times", entered)
	}
}

func TestInternalTransition(t *testing.T) {
	var tr trace

	def := NewDefinition("internal").
		State(stateA,
			WithOnEnter(tr.enter("a")),
			WithOnExit(tr.exit("a")),
		).
		Internal(stateA, evNext, WithAction(tr.action("tick"))).
		Initial(stateA)

	m := startMachine(t, def)
	tr = nil

	if out := send(t, m, evNext); !out.IsNone() {
		t.Errorf("internal transition returned %v", out)
	}
	if !slices.Equal(tr, trace{"tick"}) {
		t.Errorf("expected only the action, got %v", tr)
	}
}

func TestDuringForwardsToNestedMachine(t *testing.T) {
	inner := NewDefinition("inner").
		State(stateA).
		State(stateB).
		Transition(stateA, evGo, stateB).
		Internal(stateB, evDone, WithAction(func(c *Context) error {
			c.Return(Event{ID: evNext})
			return nil
		})).
		Initial(stateA)
	sub := startMachine(t, inner)

	outer := NewDefinition("outer").
		State(stateParent, WithDuring(func(c *Context) Event {
			out, err := sub.Handle(c.Event)
			if err != nil {
				return Event{ID: EventError}
			}
			return out
		})).
		State(stateOther).
		Transition(stateParent, evGo, stateOther). // shadowed by the nested machine
		Transition(stateParent, evNext, stateOther).
		Initial(stateParent)
	m := startMachine(t, outer)

	send(t, m, evGo)
	if sub.State() != stateB || m.State() != stateParent {
		t.Fatalf("nested=%s outer=%s", sub.State(), m.State())
	}

	// The nested machine reports an outcome the outer one reacts to
	send(t, m, evDone)
	if m.State() != stateOther {
		t.Errorf("expected state %s, got %s", stateOther, m.State())
	}
}

func TestContextReturn(t *testing.T) {
	def := NewDefinition("return").
		State(stateA).
		Internal(stateA, evGo, WithAction(func(c *Context) error {
			c.Return(Event{ID: evDone, Param: 4})
			return nil
		})).
		Initial(stateA)

	m := startMachine(t, def)
	if out := send(t, m, evGo); out != (Event{ID: evDone, Param: 4}) {
		t.Errorf("expected returned event, got %v", out)
	}

	// Cleared for the next event
	if out := send(t, m, evBack); out.ID != evBack {
		t.Errorf("stale return value %v", out)
	}
}

func TestActionErrorIsReported(t *testing.T) {
	boom := errors.New("boom")

	def := NewDefinition("failing").
		State(stateA).
		State(stateB, WithOnEnter(func(c *Context) error { return boom })).
		Transition(stateA, evGo, stateB).
		Initial(stateA)

	m := startMachine(t, def)
	_, err := m.Handle(Event{ID: evGo})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if !strings.Contains(err.Error(), "failing") {
		t.Errorf("error %q does not name the machine", err)
	}
}

func TestContextCarriesTrigger(t *testing.T) {
	var entry, trigger Event
	var from StateID

	def := NewDefinition("trigger").
		State(stateA).
		State(stateB, WithOnEnter(func(c *Context) error {
			entry, trigger, from = c.Event, c.Trigger, c.FromState
			return nil
		})).
		Transition(stateA, evGo, stateB).
		Initial(stateA)

	m := startMachine(t, def)
	if _, err := m.Handle(Event{ID: evGo, Param: 9}); err != nil {
		t.Fatal(err)
	}

	if entry.ID != EventEntry {
		t.Errorf("entry action saw %v", entry)
	}
	if trigger != (Event{ID: evGo, Param: 9}) {
		t.Errorf("trigger = %v", trigger)
	}
	if from != stateA {
		t.Errorf("from = %s", from)
	}
}

func TestStateChangeCallback(t *testing.T) {
	type change struct{ from, to StateID }
	var changes []change

	def := NewDefinition("callback").
		State(stateA).
		State(stateB).
		Internal(stateB, evNext).
		Transition(stateA, evGo, stateB).
		Initial(stateA)

	m, err := def.Build(WithStateChangeCallback(func(from, to StateID) {
		changes = append(changes, change{from, to})
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(Event{ID: EventInit}); err != nil {
		t.Fatal(err)
	}
	send(t, m, evGo)
	send(t, m, evNext)

	want := []change{{"", stateA}, {stateA, stateB}}
	if !slices.Equal(changes, want) {
		t.Errorf("expected %v, got %v", want, changes)
	}
}

func TestWildcardTransition(t *testing.T) {
	def := NewDefinition("wildcard").
		State(stateA).
		State(stateB).
		State(stateC).
		Transition(stateA, evGo, stateB).
		AnyStateTransition(evBack, stateC).
		Initial(stateA)

	m := startMachine(t, def)
	send(t, m, evGo)
	send(t, m, evBack)
	if m.State() != stateC {
		t.Errorf("expected state %s, got %s", stateC, m.State())
	}
}

func TestStateTimerStoppedOnExit(t *testing.T) {
	var posted []Event
	bank := NewTimerBank(DefaultTick, func(ev Event) error {
		posted = append(posted, ev)
		return nil
	})
	timer := bank.NewTimer("test", "t")

	def := NewDefinition("timers").
		State(stateA,
			WithTimer(timer),
			WithOnEnter(func(c *Context) error {
				timer.Arm(10 * DefaultTick)
				return nil
			}),
		).
		State(stateB).
		Timeout(stateA, timer, stateB).
		Transition(stateA, evGo, stateB).
		Initial(stateA)

	m := startMachine(t, def)
	send(t, m, evGo)
	if timer.Active() {
		t.Fatal("timer still armed after leaving its state")
	}
	for i := 0; i < 20; i++ {
		bank.Tick()
	}
	if len(posted) != 0 {
		t.Errorf("stopped timer fired: %v", posted)
	}
}

func TestTimeoutTransitionMatchesTimer(t *testing.T) {
	bank := NewTimerBank(DefaultTick, func(Event) error { return nil })
	mine := bank.NewTimer("test", "mine")
	theirs := bank.NewTimer("test", "theirs")

	def := NewDefinition("timeout").
		State(stateA).
		State(stateB).
		Timeout(stateA, mine, stateB).
		Initial(stateA)

	m := startMachine(t, def)

	if _, err := m.Handle(Event{ID: EventTimeout, Param: theirs.ID()}); err != nil {
		t.Fatal(err)
	}
	if m.State() != stateA {
		t.Fatalf("foreign timer moved the machine to %s", m.State())
	}
	if _, err := m.Handle(Event{ID: EventTimeout, Param: mine.ID()}); err != nil {
		t.Fatal(err)
	}
	if m.State() != stateB {
		t.Errorf("expected state %s, got %s", stateB, m.State())
	}
}

func TestStartStop(t *testing.T) {
	def := NewDefinition("lifecycle").State(stateA).Initial(stateA)

	m := startMachine(t, def)
	if err := m.Start(Event{ID: EventInit}); err == nil {
		t.Error("second start succeeded")
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Handle(Event{ID: evGo}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("handle on stopped machine: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
	if err := m.Start(Event{ID: EventInit}); err != nil {
		t.Errorf("restart: %v", err)
	}
	if m.Name() != "lifecycle" {
		t.Errorf("name = %s", m.Name())
	}
}

func TestValidation(t *testing.T) {
	bank := NewTimerBank(DefaultTick, func(Event) error { return nil })
	timer := bank.NewTimer("test", "t")

	tests := []struct {
		name    string
		def     *Definition
		wantErr bool
	}{
		{
			name:    "no initial state",
			def:     NewDefinition("v").State(stateA),
			wantErr: true,
		},
		{
			name:    "undefined initial",
			def:     NewDefinition("v").State(stateA).Initial(stateB),
			wantErr: true,
		},
		{
			name:    "undefined parent",
			def:     NewDefinition("v").State(stateA, WithParent(stateB)).Initial(stateA),
			wantErr: true,
		},
		{
			name:    "undefined default child",
			def:     NewDefinition("v").State(stateA, WithDefaultChild(stateB)).Initial(stateA),
			wantErr: true,
		},
		{
			name: "default child of another parent",
			def: NewDefinition("v").
				State(stateA, WithDefaultChild(stateB)).
				State(stateB).
				Initial(stateA),
			wantErr: true,
		},
		{
			name:    "undefined transition source",
			def:     NewDefinition("v").State(stateA).Transition(stateB, evGo, stateA).Initial(stateA),
			wantErr: true,
		},
		{
			name:    "undefined transition target",
			def:     NewDefinition("v").State(stateA).Transition(stateA, evGo, stateB).Initial(stateA),
			wantErr: true,
		},
		{
			name: "transition out of final state",
			def: NewDefinition("v").
				State(stateA).
				FinalState(stateFinal).
				Transition(stateFinal, evGo, stateA).
				Initial(stateA),
			wantErr: true,
		},
		{
			name:    "condition without function",
			def:     NewDefinition("v").ConditionState(stateCond, nil).Initial(stateCond),
			wantErr: true,
		},
		{
			name: "parent cycle",
			def: NewDefinition("v").
				State(stateA, WithParent(stateB)).
				State(stateB, WithParent(stateA)).
				Initial(stateA),
			wantErr: true,
		},
		{
			name: "valid definition",
			def: NewDefinition("v").
				State(stateA).
				State(stateB).
				Transition(stateA, evGo, stateB).
				Internal(stateB, evNext).
				Timeout(stateB, timer, stateA).
				AnyStateTransition(evBack, stateA).
				Initial(stateA),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatesKeepDeclarationOrder(t *testing.T) {
	def := NewDefinition("order").State(stateC).State(stateA).State(stateB).State(stateA)

	want := []StateID{stateC, stateA, stateB}
	if got := def.States(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

package hsm

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type collector struct {
	events []Event
}

func (c *collector) post(ev Event) error {
	c.events = append(c.events, ev)
	return nil
}

func tick(b *TimerBank, n int) {
	for i := 0; i < n; i++ {
		b.Tick()
	}
}

func TestTimerFiresOnce(t *testing.T) {
	var c collector
	bank := NewTimerBank(DefaultTick, c.post)
	timer := bank.NewTimer("test", "motion")

	timer.Arm(10 * time.Millisecond)
	tick(bank, 4)
	if len(c.events) != 0 {
		t.Fatalf("fired early: %v", c.events)
	}
	tick(bank, 1)
	want := []Event{{ID: EventTimeout, Param: timer.ID()}}
	if !slices.Equal(c.events, want) {
		t.Fatalf("expected %v, got %v", want, c.events)
	}
	if timer.Active() {
		t.Error("timer still armed after firing")
	}

	tick(bank, 20)
	if len(c.events) != 1 {
		t.Errorf("timer repeated: %v", c.events)
	}
}

func TestTimerRearmShorterWins(t *testing.T) {
	var c collector
	bank := NewTimerBank(DefaultTick, c.post)
	timer := bank.NewTimer("test", "motion")

	timer.Arm(time.Second)
	tick(bank, 100)
	timer.Arm(100 * time.Millisecond)

	tick(bank, 49)
	if len(c.events) != 0 {
		t.Fatalf("fired before the new duration: %v", c.events)
	}
	tick(bank, 1)
	if len(c.events) != 1 {
		t.Fatalf("did not fire at the new duration")
	}

	// the old countdown is gone
	tick(bank, 500)
	if len(c.events) != 1 {
		t.Errorf("old countdown fired: %v", c.events)
	}
}

func TestTimerSetStartStop(t *testing.T) {
	var c collector
	bank := NewTimerBank(DefaultTick, c.post)
	timer := bank.NewTimer("test", "t")

	timer.Set(6 * time.Millisecond)
	if timer.Active() {
		t.Fatal("Set armed the timer")
	}
	timer.Start()
	tick(bank, 2)
	timer.Stop()
	timer.Stop()
	tick(bank, 10)
	if len(c.events) != 0 {
		t.Fatalf("stopped timer fired: %v", c.events)
	}

	// Start reuses the last duration from the top
	timer.Start()
	tick(bank, 3)
	if len(c.events) != 1 {
		t.Errorf("restarted timer did not fire after 3 ticks")
	}
}

func TestTimerIDsAreUnique(t *testing.T) {
	bank := NewTimerBank(DefaultTick, func(Event) error { return nil })
	a := bank.NewTimer("gathering", "motion")
	b := bank.NewTimer("scoring", "motion")

	if a.ID() == 0 || a.ID() == b.ID() {
		t.Errorf("ids %d and %d", a.ID(), b.ID())
	}
	if a.String() != "gathering.motion" || a.Name() != "motion" {
		t.Errorf("names %q %q", a.String(), a.Name())
	}
}

func TestTimerBankConversions(t *testing.T) {
	bank := NewTimerBank(0, func(Event) error { return nil })

	tests := []struct {
		d    time.Duration
		want int64
	}{
		{0, 1},
		{time.Millisecond, 1},
		{2 * time.Millisecond, 1},
		{3 * time.Millisecond, 2},
		{time.Second, 500},
	}
	for _, tt := range tests {
		if got := bank.Ticks(tt.d); got != tt.want {
			t.Errorf("Ticks(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
	if bank.Period() != DefaultTick {
		t.Errorf("period = %v", bank.Period())
	}
	bank.Tick()
	bank.Tick()
	if bank.Now() != 2 || bank.Elapsed() != 4*time.Millisecond {
		t.Errorf("now=%d elapsed=%v", bank.Now(), bank.Elapsed())
	}
}

func TestQueueFull(t *testing.T) {
	q := NewQueue("test", 2)

	for i := 0; i < 2; i++ {
		if err := q.Post(Event{ID: evGo, Param: i}); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	if err := q.Post(Event{ID: evGo, Param: 2}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("len = %d", q.Len())
	}

	// FIFO, the dropped event is gone
	for i := 0; i < 2; i++ {
		ev, ok := q.next()
		if !ok || ev.Param != i {
			t.Errorf("next = %v %v, want param %d", ev, ok, i)
		}
	}
	if _, ok := q.next(); ok {
		t.Error("queue not empty")
	}
}

func TestDispatcherRoundRobin(t *testing.T) {
	d := NewDispatcher(DefaultTick)
	var order []string

	d.Register("first", ServiceFunc(func(ev Event) error {
		order = append(order, "first:"+string(ev.ID))
		return nil
	}), 4)
	d.Register("second", ServiceFunc(func(ev Event) error {
		order = append(order, "second:"+string(ev.ID))
		return nil
	}), 4)

	if err := d.Post(Event{ID: evGo}); err != nil {
		t.Fatal(err)
	}
	if err := d.Post(Event{ID: evBack}); err != nil {
		t.Fatal(err)
	}
	if err := d.Drain(); err != nil {
		t.Fatal(err)
	}

	want := []string{"first:go", "second:go", "first:back", "second:back"}
	if !slices.Equal(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
	if ok, err := d.DispatchOne(); ok || err != nil {
		t.Errorf("DispatchOne on empty queues = %v, %v", ok, err)
	}
}

func TestDispatcherRunsToCompletion(t *testing.T) {
	d := NewDispatcher(DefaultTick)
	var order []int

	// an event posted while handling is seen after the current one
	d.Register("svc", ServiceFunc(func(ev Event) error {
		order = append(order, ev.Param)
		if ev.Param == 1 {
			if err := d.Post(Event{ID: evNext, Param: 3}); err != nil {
				return err
			}
		}
		order = append(order, -ev.Param)
		return nil
	}), 4)

	d.Post(Event{ID: evGo, Param: 1})
	d.Post(Event{ID: evGo, Param: 2})
	if err := d.Drain(); err != nil {
		t.Fatal(err)
	}

	want := []int{1, -1, 2, -2, 3, -3}
	if !slices.Equal(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestDispatcherServiceError(t *testing.T) {
	d := NewDispatcher(DefaultTick)
	boom := errors.New("boom")
	d.Register("svc", ServiceFunc(func(Event) error { return boom }), 1)

	d.Post(Event{ID: evGo})
	if err := d.Drain(); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestDispatcherPostFullQueue(t *testing.T) {
	d := NewDispatcher(DefaultTick)
	d.Register("svc", ServiceFunc(func(Event) error { return nil }), 1)

	if err := d.Post(Event{ID: evGo}); err != nil {
		t.Fatal(err)
	}
	if err := d.Post(Event{ID: evGo}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcherTickOrder(t *testing.T) {
	d := NewDispatcher(DefaultTick)
	var seen []Event
	d.Register("svc", ServiceFunc(func(ev Event) error {
		seen = append(seen, ev)
		return nil
	}), 8)

	timer := d.Timers().NewTimer("test", "t")
	timer.Arm(3 * DefaultTick)

	checks := 0
	d.Every("checker", 2*DefaultTick, func() {
		checks++
		d.Post(Event{ID: evNext, Param: checks})
	})

	for i := 0; i < 4; i++ {
		if err := d.Tick(); err != nil {
			t.Fatal(err)
		}
	}

	want := []Event{
		{ID: evNext, Param: 1},
		{ID: EventTimeout, Param: timer.ID()},
		{ID: evNext, Param: 2},
	}
	if !slices.Equal(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestDispatcherRun(t *testing.T) {
	d := NewDispatcher(time.Millisecond)
	fired := make(chan Event, 1)
	d.Register("svc", ServiceFunc(func(ev Event) error {
		if ev.ID == EventTimeout {
			fired <- ev
		}
		return nil
	}), 4)
	d.Timers().NewTimer("test", "t").Arm(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired under Run")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
}

func TestInitError(t *testing.T) {
	cause := errors.New("no SPI")
	err := InitFailed(InitHardware, cause)

	var ie *InitError
	if !errors.As(err, &ie) || ie.Category != InitHardware {
		t.Fatalf("expected hardware InitError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
	if InitFailed(InitConfig, nil) != nil {
		t.Error("nil cause produced an error")
	}
}

package game

import (
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/hal"
)

type fakeReporter struct {
	play    int
	bins    map[int]int
	wall    int
	wallErr error
}

func (f *fakeReporter) BallsInPlay() (int, error)       { return f.play, nil }
func (f *fakeReporter) BallsInBin(bin int) (int, error) { return f.bins[bin], nil }
func (f *fakeReporter) WallAngle() (int, error)         { return f.wall, f.wallErr }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bench drives machines through a real dispatcher and records the
// hardware commands they issue.
type bench struct {
	t        *testing.T
	d        *hsm.Dispatcher
	rec      *hal.Recorder
	returned []hsm.Event
}

func newBench(t *testing.T) *bench {
	return &bench{
		t:   t,
		d:   hsm.NewDispatcher(hsm.DefaultTick, hsm.WithDispatcherLogger(quietLogger())),
		rec: hal.NewRecorder(quietLogger()),
	}
}

func (b *bench) timers() *hsm.TimerBank {
	return b.d.Timers()
}

// serve registers sub as the only service. Events handed back in place
// of the input are collected in returned.
func (b *bench) serve(sub SubMachine) {
	b.d.Register("sub", hsm.ServiceFunc(func(ev hsm.Event) error {
		out, err := sub.Handle(ev)
		if err != nil {
			return err
		}
		if !out.IsNone() && out != ev {
			b.returned = append(b.returned, out)
		}
		return nil
	}), 16)
}

func (b *bench) send(id hsm.EventID, param int) {
	b.t.Helper()
	if err := b.d.Post(hsm.Event{ID: id, Param: param}); err != nil {
		b.t.Fatalf("post %s: %v", id, err)
	}
	if err := b.d.Drain(); err != nil {
		b.t.Fatalf("dispatch %s: %v", id, err)
	}
}

func (b *bench) advance(d time.Duration) {
	b.t.Helper()
	n := b.timers().Ticks(d)
	for i := int64(0); i < n; i++ {
		if err := b.d.Tick(); err != nil {
			b.t.Fatalf("tick: %v", err)
		}
	}
}

func (b *bench) expectCommands(want ...hal.Command) {
	b.t.Helper()
	if got := b.rec.Commands(); !slices.Equal(got, want) {
		b.t.Errorf("commands = %v, want %v", got, want)
	}
}

func (b *bench) expectLast(want hal.Command) {
	b.t.Helper()
	got, ok := b.rec.Last()
	if !ok || got != want {
		b.t.Errorf("last command = %v, want %v", got, want)
	}
}

func expectState(t *testing.T, sub interface{ State() hsm.StateID }, want hsm.StateID) {
	t.Helper()
	if got := sub.State(); got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

var (
	stop     = hal.Command{Op: hal.OpStop}
	fanOff   = hal.Command{Op: hal.OpFan, Value: 0}
	lightsOn = hal.Command{Op: hal.OpAllLights, Value: 1}
)

func forward(speed int) hal.Command  { return hal.Command{Op: hal.OpForward, Value: speed} }
func backward(speed int) hal.Command { return hal.Command{Op: hal.OpBackward, Value: speed} }
func left(speed int) hal.Command     { return hal.Command{Op: hal.OpLeft, Value: speed} }
func right(speed int) hal.Command    { return hal.Command{Op: hal.OpRight, Value: speed} }

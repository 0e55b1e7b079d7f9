// Package scenario replays scripted sensor stimuli against a robot on the
// host. A script lists, by time since the start, edges on the switch
// inputs, beacons blinking in front of a receiver and changes of what the
// field status reporter answers.
package scenario

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/fsr"
	"github.com/hippos-robot/hsm/game"
	"github.com/hippos-robot/hsm/sense"
)

// Edge inputs a step can trigger
const (
	LeftTape    = "left-tape"
	RightTape   = "right-tape"
	FrontBumper = "front-bumper"
	RearBumper  = "rear-bumper"
	Ball        = "ball"
)

// Script is a timed list of stimuli
type Script struct {
	Name string `yaml:"name"`
	// Duration keeps the player running after the last step
	Duration time.Duration `yaml:"duration"`
	Steps    []Step        `yaml:"steps"`
}

// Step is one stimulus. Exactly one of Edge, Beacon and FSR is set.
type Step struct {
	At time.Duration `yaml:"at"`

	Edge string `yaml:"edge,omitempty"`

	// Beacon is "front" or "rear". The beacon blinks for For, or for
	// Pulses edges when For is zero.
	Beacon string        `yaml:"beacon,omitempty"`
	ID     int           `yaml:"id,omitempty"`
	Pulses int           `yaml:"pulses,omitempty"`
	For    time.Duration `yaml:"for,omitempty"`

	FSR *Report `yaml:"fsr,omitempty"`
}

// Report changes the answers of the simulated reporter. Unset fields keep
// their value.
type Report struct {
	BallsInPlay *int        `yaml:"balls_in_play,omitempty"`
	WallAngle   *int        `yaml:"wall_angle,omitempty"`
	Bins        map[int]int `yaml:"bins,omitempty"`
}

// defaultPulses is enough edges to measure one period
const defaultPulses = 2

// Load reads a script from path
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	s := &Script{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every step
func (s *Script) Validate() error {
	var errs []error
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (st Step) validate() error {
	kinds := 0
	if st.Edge != "" {
		kinds++
	}
	if st.Beacon != "" {
		kinds++
	}
	if st.FSR != nil {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("needs exactly one of edge, beacon, fsr")
	}
	if st.At < 0 {
		return fmt.Errorf("negative time %v", st.At)
	}

	switch {
	case st.Edge != "":
		switch st.Edge {
		case LeftTape, RightTape, FrontBumper, RearBumper, Ball:
		default:
			return fmt.Errorf("unknown edge input %q", st.Edge)
		}
	case st.Beacon != "":
		if st.Beacon != "front" && st.Beacon != "rear" {
			return fmt.Errorf("unknown receiver %q", st.Beacon)
		}
		if sense.BeaconPeriod(st.ID) == 0 {
			return fmt.Errorf("no beacon %d", st.ID)
		}
		if st.Pulses < 0 || st.For < 0 {
			return fmt.Errorf("negative beacon length")
		}
	case st.FSR != nil:
		for bin := range st.FSR.Bins {
			if bin < 1 || bin > 4 {
				return fmt.Errorf("no bin %d", bin)
			}
		}
	}
	return nil
}

// End is when the last stimulus fires, or Duration if later
func (s *Script) End() time.Duration {
	end := s.Duration
	for _, st := range s.Steps {
		at := st.At
		if st.Beacon != "" {
			at += st.length()
		}
		end = max(end, at)
	}
	return end
}

// length is the time between the first and the last beacon edge
func (st Step) length() time.Duration {
	period := sense.BeaconPeriod(st.ID)
	if st.For > 0 {
		return st.For / period * period
	}
	pulses := st.Pulses
	if pulses == 0 {
		pulses = defaultPulses
	}
	return time.Duration(pulses-1) * period
}

type stimulus struct {
	at   time.Duration
	name string
	fire func(at sense.Stamp)
}

// Player fires the stimuli of a script as the dispatcher ticks. It owns
// the simulated capture clock: every tick moves it forward by one period.
type Player struct {
	clock   *sense.Timebase
	tick    time.Duration
	elapsed time.Duration
	end     time.Duration

	pending []stimulus
	fired   int

	logger *slog.Logger
}

// NewPlayer expands s into stimuli for r and sim. A nil script only drives
// the clock.
func NewPlayer(s *Script, r *game.Robot, sim *fsr.Simulator, tick time.Duration, logger *slog.Logger) (*Player, error) {
	if logger == nil {
		logger = hsm.Logger
	}
	if tick <= 0 {
		tick = hsm.DefaultTick
	}
	p := &Player{
		clock:  r.Clock,
		tick:   tick,
		logger: logger.With("component", "scenario"),
	}
	if s == nil {
		return p, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if sim == nil && slices.ContainsFunc(s.Steps, func(st Step) bool { return st.FSR != nil }) {
		return nil, fmt.Errorf("scenario changes the reporter but no simulator is attached")
	}
	p.end = s.End()
	if s.Name != "" {
		p.logger = p.logger.With("scenario", s.Name)
	}

	edges := map[string]*sense.EdgeChannel{
		LeftTape:    r.LeftTape,
		RightTape:   r.RightTape,
		FrontBumper: r.FrontBumper,
		RearBumper:  r.RearBumper,
	}
	for _, st := range s.Steps {
		switch {
		case st.Edge == Ball:
			p.add(st.At, Ball, func(sense.Stamp) { r.Balls.Edge() })
		case st.Edge != "":
			ch := edges[st.Edge]
			p.add(st.At, st.Edge, func(at sense.Stamp) { ch.Edge(at) })
		case st.Beacon != "":
			rx := r.Beacons.Front
			if st.Beacon == "rear" {
				rx = r.Beacons.Rear
			}
			period := sense.BeaconPeriod(st.ID)
			name := fmt.Sprintf("%s-beacon-%d", st.Beacon, st.ID)
			for t := time.Duration(0); t <= st.length(); t += period {
				p.add(st.At+t, name, func(at sense.Stamp) { rx.Edge(at) })
			}
		case st.FSR != nil:
			rep := *st.FSR
			p.add(st.At, "fsr", func(sense.Stamp) { apply(sim, rep) })
		}
	}
	slices.SortStableFunc(p.pending, func(a, b stimulus) int {
		return cmp.Compare(a.at, b.at)
	})
	return p, nil
}

func (p *Player) add(at time.Duration, name string, fire func(sense.Stamp)) {
	p.pending = append(p.pending, stimulus{at: at, name: name, fire: fire})
}

func apply(sim *fsr.Simulator, rep Report) {
	if rep.BallsInPlay != nil {
		sim.SetBallsInPlay(*rep.BallsInPlay)
	}
	if rep.WallAngle != nil {
		sim.SetWallAngle(*rep.WallAngle)
	}
	for bin, balls := range rep.Bins {
		sim.SetBin(bin, balls)
	}
}

// Advance moves the clock one tick and fires everything now due. Edges
// are stamped with their scripted time, not the tick they fire on.
// Register it with Dispatcher.Every at the tick period.
func (p *Player) Advance() {
	p.elapsed += p.tick
	now := p.clock.Advance(p.tick)
	for p.fired < len(p.pending) && p.pending[p.fired].at <= p.elapsed {
		st := p.pending[p.fired]
		p.fired++
		p.logger.Debug("stimulus", "input", st.name, "at", st.at)
		st.fire(now - sense.Stamp(p.clock.Counts(p.elapsed-st.at)))
	}
}

// Elapsed returns the time played so far
func (p *Player) Elapsed() time.Duration {
	return p.elapsed
}

// Done reports whether every stimulus fired and the script's end passed
func (p *Player) Done() bool {
	return p.fired == len(p.pending) && p.elapsed >= p.end
}

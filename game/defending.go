package game

import (
	"log/slog"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/field"
	"github.com/hippos-robot/hsm/hal"
)

// Defending parks in front of the bin just scored and pushes back the
// rotating wall whenever it swings into the bin.
type Defending struct {
	hw       hal.Motion
	side     *field.Side
	target   func() int
	settings DefendingSettings
	speeds   Speeds
	logger   *slog.Logger
	motion   *hsm.Timer

	bin    int
	zones  field.Zones
	active bool
	turn   Direction

	fsm *hsm.Machine
}

// NewDefending builds the defending machine. target returns the bin to
// guard, normally the one scoring unloaded into.
func NewDefending(hw hal.Motion, side *field.Side, target func() int, timers *hsm.TimerBank, s Settings, logger *slog.Logger) (*Defending, error) {
	if logger == nil {
		logger = hsm.Logger
	}
	d := &Defending{
		hw:       hw,
		side:     side,
		target:   target,
		settings: s.Defending,
		speeds:   s.Speeds,
		logger:   logger.With("machine", "defending"),
		motion:   timers.NewTimer("defending", "motion"),
	}

	fsm, err := d.definition().Build(hsm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	d.fsm = fsm
	return d, nil
}

func (d *Defending) definition() *hsm.Definition {
	return hsm.NewDefinition("defending").
		State(StateDrivingAwayFromWall,
			hsm.WithOnEnter(d.enterDrivingAway),
			hsm.WithOnExit(d.stop),
			hsm.WithTimer(d.motion),
		).
		State(StateWaiting,
			hsm.WithOnEnter(d.stop),
		).
		State(StateAligningPerpendicular,
			hsm.WithOnEnter(d.enterAligning),
			hsm.WithOnExit(d.stop),
			hsm.WithTimer(d.motion),
		).
		State(StatePushingForward,
			hsm.WithOnEnter(d.forward),
			hsm.WithOnExit(d.backward),
		).
		State(StatePushingBackward,
			hsm.WithOnEnter(d.backward),
			hsm.WithOnExit(d.forward),
		).
		State(StateResetting,
			hsm.WithOnEnter(d.enterResetting),
			hsm.WithOnExit(d.stop),
			hsm.WithTimer(d.motion),
		).
		State(StateRealigning,
			hsm.WithOnEnter(d.enterRealigning),
			hsm.WithOnExit(d.stop),
		).
		Timeout(StateDrivingAwayFromWall, d.motion, StateWaiting).
		Transition(StateWaiting, EvDangerWallRight, StateAligningPerpendicular, hsm.WithAction(d.face(Right))).
		Transition(StateWaiting, EvDangerWallLeft, StateAligningPerpendicular, hsm.WithAction(d.face(Left))).
		Timeout(StateAligningPerpendicular, d.motion, StatePushingForward).
		Transition(StatePushingForward, EvNoDangerWall, StateResetting).
		Transition(StatePushingBackward, EvNoDangerWall, StateResetting).

		// The wall came back while resetting: push it from whichever
		// side it now approaches.
		Transition(StateResetting, EvDangerWallRight, StatePushingForward, hsm.WithGuard(d.facing(Right))).
		Transition(StateResetting, EvDangerWallRight, StatePushingBackward).
		Transition(StateResetting, EvDangerWallLeft, StatePushingForward, hsm.WithGuard(d.facing(Left))).
		Transition(StateResetting, EvDangerWallLeft, StatePushingBackward).
		Transition(StateResetting, EvLeftTapeDetected, StateRealigning).
		Transition(StateResetting, EvRightTapeDetected, StateRealigning).
		Timeout(StateResetting, d.motion, StateRealigning).
		Transition(StateRealigning, EvBeaconRear, StateWaiting, hsm.WithGuard(d.isBin)).
		Initial(StateDrivingAwayFromWall)
}

// Start computes the zones of the guarded bin and drives away from the
// bin wall.
func (d *Defending) Start(ev hsm.Event) error {
	team := d.side.Team()
	if team == field.TeamUnknown {
		d.logger.Warn("side unknown, assuming red")
		team = field.Red
	}
	d.bin = d.target()
	if !field.ValidBin(d.bin) {
		d.logger.Warn("no scored bin, defending bin 1", "bin", d.bin)
		d.bin = 1
	}
	d.zones = field.DefendingZones(team, d.bin, d.settings.DangerMargin, d.settings.SafeMargin)
	d.turn = Right
	d.active = true

	d.logger.Info("defending", "bin", d.bin, "team", team.String(),
		"danger_right", d.zones.DangerRight, "danger_left", d.zones.DangerLeft,
		"safe_right", d.zones.SafeRight, "safe_left", d.zones.SafeLeft)
	return d.fsm.Start(ev)
}

// Handle runs one event through the machine
func (d *Defending) Handle(ev hsm.Event) (hsm.Event, error) {
	return d.fsm.Handle(ev)
}

// Stop exits the current state
func (d *Defending) Stop() error {
	d.active = false
	return d.fsm.Stop()
}

// State returns the current defending state
func (d *Defending) State() hsm.StateID {
	return d.fsm.State()
}

// Zones returns the thresholds of the guarded bin, false when not defending
func (d *Defending) Zones() (field.Zones, bool) {
	return d.zones, d.active
}

// Bin returns the guarded bin
func (d *Defending) Bin() int {
	return d.bin
}

// Turn returns the side the robot last turned to face the wall
func (d *Defending) Turn() Direction {
	return d.turn
}

func (d *Defending) isBin(c *hsm.Context) bool {
	return c.Event.Param == d.bin
}

func (d *Defending) face(dir Direction) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		d.turn = dir
		return nil
	}
}

func (d *Defending) facing(dir Direction) func(*hsm.Context) bool {
	return func(c *hsm.Context) bool {
		return d.turn == dir
	}
}

func (d *Defending) stop(c *hsm.Context) error {
	d.hw.FullStop()
	return nil
}

func (d *Defending) forward(c *hsm.Context) error {
	d.hw.GoForward(d.speeds.Full)
	return nil
}

func (d *Defending) backward(c *hsm.Context) error {
	d.hw.GoBackward(d.speeds.Full)
	return nil
}

func (d *Defending) enterDrivingAway(c *hsm.Context) error {
	d.hw.GoForward(d.speeds.Full)
	d.motion.Arm(d.settings.WallSeparation)
	return nil
}

func (d *Defending) enterAligning(c *hsm.Context) error {
	if d.turn == Left {
		d.hw.TurnLeft()
	} else {
		d.hw.TurnRight()
	}
	d.motion.Arm(d.settings.Perpendicular)
	return nil
}

func (d *Defending) enterResetting(c *hsm.Context) error {
	d.motion.Arm(d.settings.Reset)
	return nil
}

// enterRealigning spins back against the last turn looking for the bin
func (d *Defending) enterRealigning(c *hsm.Context) error {
	if d.turn == Left {
		d.hw.TurnRightAt(d.speeds.Search)
	} else {
		d.hw.TurnLeftAt(d.speeds.Search)
	}
	return nil
}

package game

import (
	"log/slog"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/hal"
)

// Gathering roams the field collecting balls, slowing down at tape and
// backing off obstacles.
type Gathering struct {
	hw       hal.Motion
	settings GatheringSettings
	speeds   Speeds
	motion   *hsm.Timer

	turn      Direction
	turnIndex int

	fsm *hsm.Machine
}

// NewGathering builds the gathering machine
func NewGathering(hw hal.Motion, timers *hsm.TimerBank, s Settings, logger *slog.Logger) (*Gathering, error) {
	g := &Gathering{
		hw:       hw,
		settings: s.Gathering,
		speeds:   s.Speeds,
		motion:   timers.NewTimer("gathering", "motion"),
	}

	fsm, err := g.definition().Build(hsm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	g.fsm = fsm
	return g, nil
}

func (g *Gathering) definition() *hsm.Definition {
	return hsm.NewDefinition("gathering").
		State(StateFullSpeedAhead,
			hsm.WithOnEnter(g.enterFullSpeedAhead),
			hsm.WithOnExit(g.stop),
		).
		State(StateHalfSpeedAhead,
			hsm.WithOnEnter(g.enterHalfSpeedAhead),
			hsm.WithOnExit(g.stop),
			hsm.WithTimer(g.motion),
		).
		State(StateTurningLeft,
			hsm.WithOnEnter(g.enterTurn(Left)),
			hsm.WithOnExit(g.stop),
			hsm.WithTimer(g.motion),
		).
		State(StateTurningRight,
			hsm.WithOnEnter(g.enterTurn(Right)),
			hsm.WithOnExit(g.stop),
			hsm.WithTimer(g.motion),
		).
		State(StateFullReverse,
			hsm.WithOnEnter(g.enterReverse(g.speeds.Full)),
			hsm.WithOnExit(g.stop),
			hsm.WithTimer(g.motion),
		).
		State(StateHalfReverse,
			hsm.WithOnEnter(g.enterReverse(g.speeds.Caution)),
			hsm.WithOnExit(g.stop),
			hsm.WithTimer(g.motion),
		).
		ConditionState(stateChooseTurn, g.chooseTurn).

		// Driving
		Transition(StateFullSpeedAhead, EvLeftTapeDetected, StateHalfSpeedAhead).
		Transition(StateFullSpeedAhead, EvRightTapeDetected, StateHalfSpeedAhead).
		Transition(StateFullSpeedAhead, EvFrontBumped, StateFullReverse).
		Timeout(StateHalfSpeedAhead, g.motion, StateFullSpeedAhead).
		Transition(StateHalfSpeedAhead, EvFrontBumped, StateFullReverse).

		// Evading
		Timeout(StateFullReverse, g.motion, stateChooseTurn).
		Timeout(StateHalfReverse, g.motion, stateChooseTurn).
		Timeout(StateTurningLeft, g.motion, StateFullSpeedAhead).
		Timeout(StateTurningRight, g.motion, StateFullSpeedAhead).
		Transition(StateTurningLeft, EvFrontBumped, StateHalfReverse).
		Transition(StateTurningRight, EvFrontBumped, StateHalfReverse).
		Initial(StateFullSpeedAhead)
}

// Start resets the turn sequence and drives off
func (g *Gathering) Start(ev hsm.Event) error {
	g.turn = Right
	g.turnIndex = 0
	return g.fsm.Start(ev)
}

// Handle runs one event through the machine
func (g *Gathering) Handle(ev hsm.Event) (hsm.Event, error) {
	return g.fsm.Handle(ev)
}

// Stop exits the current state
func (g *Gathering) Stop() error {
	return g.fsm.Stop()
}

// State returns the current gathering state
func (g *Gathering) State() hsm.StateID {
	return g.fsm.State()
}

// NextTurn returns the direction of the next evasive turn
func (g *Gathering) NextTurn() Direction {
	return g.turn
}

func (g *Gathering) enterFullSpeedAhead(c *hsm.Context) error {
	g.hw.GoForward(g.speeds.Full)
	return nil
}

func (g *Gathering) enterHalfSpeedAhead(c *hsm.Context) error {
	g.hw.GoForward(g.speeds.Caution)
	g.motion.Arm(g.settings.Caution)
	return nil
}

func (g *Gathering) enterTurn(d Direction) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		if d == Left {
			g.hw.TurnLeft()
		} else {
			g.hw.TurnRight()
		}
		g.motion.Arm(g.settings.TurnEvade)
		return nil
	}
}

func (g *Gathering) enterReverse(speed int) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		g.hw.GoBackward(speed)
		g.motion.Arm(g.settings.Backup)
		return nil
	}
}

func (g *Gathering) stop(c *hsm.Context) error {
	g.hw.FullStop()
	return nil
}

// chooseTurn takes the pending direction and loads the next one from the
// turn table.
func (g *Gathering) chooseTurn(c *hsm.Context) hsm.StateID {
	d := g.turn
	g.turn = g.settings.TurnTable[g.turnIndex%len(g.settings.TurnTable)]
	g.turnIndex++

	c.Logger.Debug("evading", "direction", d.String(), "next", g.turn.String())
	if d == Left {
		return StateTurningLeft
	}
	return StateTurningRight
}

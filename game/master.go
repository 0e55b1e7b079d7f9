package game

import (
	"fmt"
	"log/slog"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/field"
	"github.com/hippos-robot/hsm/hal"
)

// Master runs the game phases. While playing, every event first goes to
// the behaviour of the active phase; only what it leaves unconsumed is
// seen by the phase transitions.
type Master struct {
	hw       hal.Hardware
	side     *field.Side
	settings GameSettings
	logger   *slog.Logger

	endGame   *hsm.Timer
	toScoring *hsm.Timer

	gathering SubMachine
	scoring   SubMachine
	defending SubMachine

	// last failure of a behaviour, reported by Run
	subErr error

	fsm *hsm.Machine
}

// NewMaster builds the top-level machine around its three behaviours
func NewMaster(hw hal.Hardware, side *field.Side, timers *hsm.TimerBank, gathering, scoring, defending SubMachine, s Settings, logger *slog.Logger) (*Master, error) {
	if logger == nil {
		logger = hsm.Logger
	}
	m := &Master{
		hw:        hw,
		side:      side,
		settings:  s.Game,
		logger:    logger.With("machine", "master"),
		endGame:   timers.NewTimer("master", "end-game"),
		toScoring: timers.NewTimer("master", "go-to-scoring"),
		gathering: gathering,
		scoring:   scoring,
		defending: defending,
	}

	fsm, err := m.definition().Build(hsm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	m.fsm = fsm
	return m, nil
}

func (m *Master) definition() *hsm.Definition {
	return hsm.NewDefinition("master").
		State(StatePreGame).
		State(StatePlaying,
			hsm.WithTimer(m.endGame),
		).
		State(StateGathering,
			hsm.WithParent(StatePlaying),
			hsm.WithOnEnter(m.startSub(m.gathering)),
			hsm.WithOnExit(m.stopSub(m.gathering)),
			hsm.WithDuring(m.forward(m.gathering)),
			hsm.WithTimer(m.toScoring),
		).
		State(StateScoring,
			hsm.WithParent(StatePlaying),
			hsm.WithOnEnter(m.startSub(m.scoring)),
			hsm.WithOnExit(m.stopSub(m.scoring)),
			hsm.WithDuring(m.forward(m.scoring)),
		).
		State(StateDefending,
			hsm.WithParent(StatePlaying),
			hsm.WithOnEnter(m.startSub(m.defending)),
			hsm.WithOnExit(m.exitDefending),
			hsm.WithDuring(m.forward(m.defending)),
		).
		FinalState(StateGameOver,
			hsm.WithOnEnter(m.enterGameOver),
		).

		// Waiting for the referee
		Internal(StatePreGame, EvBeaconFront, hsm.WithAction(m.identify)).
		Internal(StatePreGame, EvBeaconRear, hsm.WithAction(m.identify)).
		Transition(StatePreGame, EvGameStart, StateGathering, hsm.WithAction(m.kickoff)).

		// Playing
		Timeout(StateGathering, m.toScoring, StateScoring).
		Transition(StateScoring, EvBallBinEmpty, StateDefending).
		Timeout(StatePlaying, m.endGame, StateGameOver).
		Initial(StatePreGame)
}

// Start powers the fan and enters PreGame
func (m *Master) Start() error {
	m.hw.FanControl(true)
	return m.fsm.Start(hsm.Event{ID: hsm.EventInit})
}

// Stop exits the active phase
func (m *Master) Stop() error {
	return m.fsm.Stop()
}

// Run handles one dispatched event. It implements hsm.Service.
func (m *Master) Run(ev hsm.Event) error {
	out, err := m.fsm.Handle(ev)
	if err != nil {
		return err
	}
	if out.ID == hsm.EventError {
		err, m.subErr = m.subErr, nil
		return fmt.Errorf("%s: %w", m.fsm.State(), err)
	}
	return nil
}

// State returns the current top-level state
func (m *Master) State() hsm.StateID {
	return m.fsm.State()
}

// IsInState reports whether id is the current state or one of its parents
func (m *Master) IsInState(id hsm.StateID) bool {
	return m.fsm.IsInState(id)
}

// OnStateChange registers fn to observe top-level transitions
func (m *Master) OnStateChange(fn func(from, to hsm.StateID)) {
	m.fsm.OnStateChange(fn)
}

// Over reports whether the game has ended
func (m *Master) Over() bool {
	return m.fsm.State() == StateGameOver
}

// identify lights the team colour from the first beacon seen
func (m *Master) identify(c *hsm.Context) error {
	team, ok := m.side.Identify(c.Event.Param)
	if !ok {
		return nil
	}
	c.Logger.Info("side identified", "team", team.String(), "beacon", c.Event.Param)
	m.hw.ShowTeam(team)
	return nil
}

func (m *Master) kickoff(c *hsm.Context) error {
	if !m.side.Known() {
		c.Logger.Warn("game started before any beacon was seen, assuming red")
		m.side.Set(field.Red)
		m.hw.ShowTeam(field.Red)
	}
	c.Logger.Info("game started", "balls", c.Event.Param, "length", m.settings.Length,
		"scoring_after", m.settings.ScoringAfter)
	m.endGame.Arm(m.settings.Length)
	m.toScoring.Arm(m.settings.ScoringAfter)
	return nil
}

func (m *Master) startSub(sub SubMachine) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		return sub.Start(c.Trigger)
	}
}

func (m *Master) stopSub(sub SubMachine) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		return sub.Stop()
	}
}

func (m *Master) exitDefending(c *hsm.Context) error {
	err := m.defending.Stop()
	m.hw.FullStop()
	return err
}

// forward hands an event to the active behaviour. A failing behaviour
// turns the event into EventError for Run to report.
func (m *Master) forward(sub SubMachine) func(*hsm.Context) hsm.Event {
	return func(c *hsm.Context) hsm.Event {
		out, err := sub.Handle(c.Event)
		if err != nil {
			m.subErr = err
			return hsm.Event{ID: hsm.EventError}
		}
		return out
	}
}

func (m *Master) enterGameOver(c *hsm.Context) error {
	c.Logger.Info("game over")
	m.hw.FullStop()
	m.hw.AllLightsOn()
	return nil
}

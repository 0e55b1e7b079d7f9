package game

import (
	"log/slog"
	"time"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/field"
	"github.com/hippos-robot/hsm/hal"
	"github.com/hippos-robot/hsm/sense"
)

// ballTallyPeriod is how often the collected ball count is logged
const ballTallyPeriod = 2 * time.Second

// Robot wires the game machines to the dispatcher and the sensor event
// sources. Inputs are exported so capture interrupts (or a simulator) can
// feed them.
type Robot struct {
	Master    *Master
	Gathering *Gathering
	Scoring   *Scoring
	Defending *Defending

	Side    *field.Side
	Clock   *sense.Timebase
	Beacons *sense.Beacons
	Balls   *sense.BallCounter

	LeftTape    *sense.EdgeChannel
	RightTape   *sense.EdgeChannel
	FrontBumper *sense.EdgeChannel
	RearBumper  *sense.EdgeChannel

	Wall  *sense.WallMonitor
	Start *sense.StartDetector

	dispatcher *hsm.Dispatcher
	logger     *slog.Logger
}

// NewRobot builds the machines and registers the master with d. Nothing
// moves until Begin is called.
func NewRobot(d *hsm.Dispatcher, hw hal.Hardware, reporter Reporter, clock *sense.Timebase, s Settings, logger *slog.Logger) (*Robot, error) {
	if logger == nil {
		logger = hsm.Logger
	}
	r := &Robot{
		Side:       &field.Side{},
		Clock:      clock,
		Balls:      &sense.BallCounter{},
		dispatcher: d,
		logger:     logger,
	}
	timers := d.Timers()
	post := d.Post
	sn := s.Sensing

	front := sense.NewBeaconReceiver("front", EvBeaconFront, clock, post, r.frontBeaconGate, logger)
	rear := sense.NewBeaconReceiver("rear", EvBeaconRear, clock, post, r.rearBeaconGate, logger)
	r.Beacons = sense.NewBeacons(clock, front, rear, sn.NoBeaconAfter)

	var err error
	r.Gathering, err = NewGathering(hw, timers, s, logger)
	if err != nil {
		return nil, hsm.InitFailed(hsm.InitMachine, err)
	}
	r.Scoring, err = NewScoring(hw, reporter, r.Side, front.Current, timers, s, logger)
	if err != nil {
		return nil, hsm.InitFailed(hsm.InitMachine, err)
	}
	r.Defending, err = NewDefending(hw, r.Side, r.Scoring.TargetBin, timers, s, logger)
	if err != nil {
		return nil, hsm.InitFailed(hsm.InitMachine, err)
	}
	r.Master, err = NewMaster(hw, r.Side, timers, r.Gathering, r.Scoring, r.Defending, s, logger)
	if err != nil {
		return nil, hsm.InitFailed(hsm.InitMachine, err)
	}
	r.Master.OnStateChange(func(from, to hsm.StateID) {
		logger.Info("game phase", "from", from, "to", to)
	})

	r.LeftTape = sense.NewEdgeChannel("left-tape", EvLeftTapeDetected, clock, sn.Debounce, post, r.playing, logger)
	r.RightTape = sense.NewEdgeChannel("right-tape", EvRightTapeDetected, clock, sn.Debounce, post, r.playing, logger)
	r.FrontBumper = sense.NewEdgeChannel("front-bumper", EvFrontBumped, clock, sn.Debounce, post, sense.Always, logger)
	r.RearBumper = sense.NewEdgeChannel("rear-bumper", EvRearBumped, clock, sn.Debounce, post, sense.Always, logger)

	r.Wall = sense.NewWallMonitor(reporter.WallAngle, r.Defending.Zones, WallEvents(), post, r.wallGate, logger)
	r.Start = sense.NewStartDetector(reporter.BallsInPlay, EvGameStart, post, r.preGame, logger)

	d.Register("master", r.Master, s.QueueSize)
	d.Every("beacon-watchdog", sn.WatchPeriod, r.Beacons.Check)
	d.Every("wall", sn.WallPeriod, func() { r.Wall.Check() })
	d.Every("game-start", sn.StartPeriod, func() { r.Start.Check() })
	d.Every("ball-tally", ballTallyPeriod, r.logTally)
	return r, nil
}

// WallEvents maps wall zones to game events
func WallEvents() sense.WallEvents {
	return sense.WallEvents{
		DangerLeft:  EvDangerWallLeft,
		DangerRight: EvDangerWallRight,
		Safe:        EvNoDangerWall,
	}
}

// Begin starts the master machine
func (r *Robot) Begin() error {
	if err := r.Master.Start(); err != nil {
		return hsm.InitFailed(hsm.InitMachine, err)
	}
	return nil
}

// Over reports whether the game has ended
func (r *Robot) Over() bool {
	return r.Master.Over()
}

func (r *Robot) preGame() bool {
	return r.Master.State() == StatePreGame
}

func (r *Robot) playing() bool {
	return r.Master.IsInState(StatePlaying)
}

// Front beacons matter for side identification and while squaring up on
// the opposite bin.
func (r *Robot) frontBeaconGate() bool {
	switch r.Master.State() {
	case StatePreGame:
		return true
	case StateScoring:
		switch r.Scoring.State() {
		case StateAligningFrontBeacon, StateFindingLeftBeacon, StateFindingRightBeacon:
			return true
		}
	}
	return false
}

func (r *Robot) rearBeaconGate() bool {
	switch r.Master.State() {
	case StatePreGame:
		return true
	case StateScoring:
		return r.Scoring.State() == StateAligningRearBeacon
	case StateDefending:
		return r.Defending.State() == StateRealigning
	}
	return false
}

func (r *Robot) wallGate() bool {
	if r.Master.State() != StateDefending {
		return false
	}
	switch r.Defending.State() {
	case StateWaiting, StateResetting, StatePushingForward, StatePushingBackward:
		return true
	}
	return false
}

func (r *Robot) logTally() {
	if !r.playing() {
		return
	}
	r.logger.Debug("ball tally", "collected", r.Balls.Count(), "elapsed", r.dispatcher.Timers().Elapsed())
}

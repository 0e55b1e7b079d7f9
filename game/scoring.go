package game

import (
	"log/slog"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/field"
	"github.com/hippos-robot/hsm/hal"
)

// Reporter is the field status reporter as seen by the game
type Reporter interface {
	BallsInPlay() (int, error)
	BallsInBin(bin int) (int, error)
	WallAngle() (int, error)
}

// Scoring picks the best bin, backs into it using the beacons and dumps
// the collected balls.
type Scoring struct {
	hw       hal.Hardware
	reporter Reporter
	side     *field.Side
	front    func() int
	timers   *hsm.TimerBank
	settings ScoringSettings
	speeds   Speeds
	logger   *slog.Logger

	motion       *hsm.Timer
	nod          *hsm.Timer
	backupSearch *hsm.Timer
	unloadDelay  *hsm.Timer
	bump         *hsm.Timer
	shuffle      *hsm.Timer
	shuffleStep  *hsm.Timer

	target   field.Bin
	opposite int
	left     int
	right    int
	passes   int
	leftAt   int64
	rightAt  int64
	shuffleD Direction

	fsm *hsm.Machine
}

// NewScoring builds the scoring machine. front reports the beacon the
// front receiver currently sees.
func NewScoring(hw hal.Hardware, reporter Reporter, side *field.Side, front func() int, timers *hsm.TimerBank, s Settings, logger *slog.Logger) (*Scoring, error) {
	if logger == nil {
		logger = hsm.Logger
	}
	sc := &Scoring{
		hw:           hw,
		reporter:     reporter,
		side:         side,
		front:        front,
		timers:       timers,
		settings:     s.Scoring,
		speeds:       s.Speeds,
		logger:       logger.With("machine", "scoring"),
		motion:       timers.NewTimer("scoring", "motion"),
		nod:          timers.NewTimer("scoring", "beacon-nod"),
		backupSearch: timers.NewTimer("scoring", "backup-search"),
		unloadDelay:  timers.NewTimer("scoring", "unload-delay"),
		bump:         timers.NewTimer("scoring", "unload-bump"),
		shuffle:      timers.NewTimer("scoring", "shuffle"),
		shuffleStep:  timers.NewTimer("scoring", "shuffle-step"),
	}

	fsm, err := sc.definition().Build(hsm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	sc.fsm = fsm
	return sc, nil
}

func (s *Scoring) definition() *hsm.Definition {
	return hsm.NewDefinition("scoring").
		State(StateAligningRearBeacon,
			hsm.WithOnEnter(s.enterAligning),
			hsm.WithOnExit(s.stop),
			hsm.WithTimer(s.nod),
		).
		State(StateBackingUp,
			hsm.WithOnEnter(s.enterBackingUp),
			hsm.WithOnExit(s.stop),
			hsm.WithTimer(s.motion),
		).
		State(StateDrivingForwardClearance,
			hsm.WithOnEnter(s.enterClearance),
			hsm.WithOnExit(s.stop),
			hsm.WithTimer(s.motion),
		).
		State(StateAligningFrontBeacon,
			hsm.WithOnEnter(s.enterAligningFront),
			hsm.WithOnExit(s.exitAligningFront),
			hsm.WithTimer(s.nod),
			hsm.WithTimer(s.backupSearch),
		).
		State(StateFindingLeftBeacon,
			hsm.WithOnEnter(s.spin(Left)),
			hsm.WithOnExit(s.acquired(&s.leftAt)),
		).
		State(StateFindingRightBeacon,
			hsm.WithOnEnter(s.spin(Right)),
			hsm.WithOnExit(s.acquired(&s.rightAt)),
		).
		State(StateBisectingAngle,
			hsm.WithOnEnter(s.enterBisecting),
			hsm.WithOnExit(s.stop),
			hsm.WithTimer(s.motion),
		).
		State(StateDrivingForwardAlignment,
			hsm.WithOnEnter(s.enterAlignment),
			hsm.WithOnExit(s.stop),
			hsm.WithTimer(s.motion),
		).
		State(StateUnloading,
			hsm.WithOnEnter(s.enterUnloading),
			hsm.WithTimer(s.unloadDelay),
			hsm.WithTimer(s.bump),
			hsm.WithTimer(s.motion),
		).
		State(StateShuffling,
			hsm.WithOnEnter(s.enterShuffling),
			hsm.WithOnExit(s.stop),
			hsm.WithTimer(s.shuffle),
			hsm.WithTimer(s.shuffleStep),
		).

		// Lining up on the target bin
		Internal(StateAligningRearBeacon, hsm.EventTimeout, hsm.OnTimer(s.nod), hsm.WithAction(s.searchLeft)).
		Transition(StateAligningRearBeacon, EvBeaconRear, StateBackingUp, hsm.WithGuard(s.isTarget)).

		// Backing into the bin
		Internal(StateBackingUp, EvLeftTapeDetected, hsm.WithAction(s.cautionReverse)).
		Internal(StateBackingUp, EvRightTapeDetected, hsm.WithAction(s.cautionReverse)).
		Internal(StateBackingUp, hsm.EventTimeout, hsm.OnTimer(s.motion), hsm.WithAction(s.fullReverse)).
		Transition(StateBackingUp, EvRearBumped, StateUnloading,
			hsm.WithGuard(s.lastPass), hsm.WithAction(s.fanOff)).
		Transition(StateBackingUp, EvRearBumped, StateUnloading,
			hsm.WithGuard(s.oppositeInFront), hsm.WithAction(s.fanOff)).
		Transition(StateBackingUp, EvRearBumped, StateDrivingForwardClearance).
		Timeout(StateDrivingForwardClearance, s.motion, StateAligningFrontBeacon).

		// Straightening up on the opposite bin
		Transition(StateAligningFrontBeacon, EvBeaconFront, StateDrivingForwardAlignment, hsm.WithGuard(s.isOpposite)).
		Internal(StateAligningFrontBeacon, hsm.EventTimeout, hsm.OnTimer(s.nod), hsm.WithAction(s.searchLeft)).
		Timeout(StateAligningFrontBeacon, s.backupSearch, StateFindingLeftBeacon).
		Transition(StateFindingLeftBeacon, EvBeaconFront, StateFindingRightBeacon, hsm.WithGuard(s.isBin(&s.left))).
		Transition(StateFindingRightBeacon, EvBeaconFront, StateBisectingAngle, hsm.WithGuard(s.isBin(&s.right))).
		Timeout(StateBisectingAngle, s.motion, StateDrivingForwardAlignment).
		Timeout(StateDrivingForwardAlignment, s.motion, StateAligningRearBeacon).
		Transition(StateDrivingForwardAlignment, EvFrontBumped, StateAligningRearBeacon).

		// Dumping
		Internal(StateUnloading, hsm.EventTimeout, hsm.OnTimer(s.unloadDelay), hsm.WithAction(s.pullAway)).
		Internal(StateUnloading, hsm.EventTimeout, hsm.OnTimer(s.bump), hsm.WithAction(s.ram)).
		Internal(StateUnloading, EvRearBumped, hsm.WithAction(s.rammed)).
		Timeout(StateUnloading, s.motion, StateShuffling).
		Internal(StateShuffling, hsm.EventTimeout, hsm.OnTimer(s.shuffleStep), hsm.WithAction(s.shuffleOnce)).
		Internal(StateShuffling, hsm.EventTimeout, hsm.OnTimer(s.shuffle), hsm.WithAction(s.binEmpty)).
		Initial(StateAligningRearBeacon)
}

// Start picks the target bin and begins lining up on it
func (s *Scoring) Start(ev hsm.Event) error {
	s.target = s.pickTarget()
	s.opposite = field.Opposite(s.target.ID)
	s.left = field.Left(s.target.ID)
	s.right = field.Right(s.target.ID)
	s.passes = 0
	s.leftAt, s.rightAt = 0, 0
	s.shuffleD = Left

	s.logger.Info("target bin", "bin", s.target.ID, "availability", s.target.Availability.String(),
		"balls", s.target.Balls, "opposite", s.opposite)
	return s.fsm.Start(ev)
}

// Handle runs one event through the machine
func (s *Scoring) Handle(ev hsm.Event) (hsm.Event, error) {
	return s.fsm.Handle(ev)
}

// Stop exits the current state
func (s *Scoring) Stop() error {
	return s.fsm.Stop()
}

// State returns the current scoring state
func (s *Scoring) State() hsm.StateID {
	return s.fsm.State()
}

// TargetBin returns the bin picked when scoring started, 0 before that
func (s *Scoring) TargetBin() int {
	return s.target.ID
}

// Passes returns the number of completed front alignments
func (s *Scoring) Passes() int {
	return s.passes
}

// pickTarget ranks the bins for the current wall angle. Bad readings
// degrade: an unknown wall angle makes every bin Partial, an unknown bin
// count reads as empty.
func (s *Scoring) pickTarget() field.Bin {
	team := s.side.Team()
	if team == field.TeamUnknown {
		s.logger.Warn("side unknown, assuming red")
		team = field.Red
	}

	var avail [field.NumBins]field.Availability
	angle, err := s.reporter.WallAngle()
	if err != nil {
		s.logger.Warn("wall angle unavailable, treating every bin as partial", "error", err)
		for i := range avail {
			avail[i] = field.Partial
		}
	} else {
		avail = field.Availabilities(team, angle)
	}

	bins := make([]field.Bin, 0, field.NumBins)
	for id := 1; id <= field.NumBins; id++ {
		n, err := s.reporter.BallsInBin(id)
		if err != nil {
			s.logger.Warn("bin count unavailable", "bin", id, "error", err)
			n = 0
		}
		bins = append(bins, field.Bin{ID: id, Balls: n, Availability: avail[id-1]})
	}

	best, _ := field.Pick(bins)
	return best
}

func (s *Scoring) isTarget(c *hsm.Context) bool {
	return c.Event.Param == s.target.ID
}

func (s *Scoring) isOpposite(c *hsm.Context) bool {
	return c.Event.Param == s.opposite
}

func (s *Scoring) isBin(bin *int) func(*hsm.Context) bool {
	return func(c *hsm.Context) bool {
		return c.Event.Param == *bin
	}
}

func (s *Scoring) lastPass(c *hsm.Context) bool {
	return s.passes >= s.settings.MaxApproachPasses
}

func (s *Scoring) oppositeInFront(c *hsm.Context) bool {
	return s.front() == s.opposite
}

func (s *Scoring) stop(c *hsm.Context) error {
	s.hw.FullStop()
	return nil
}

func (s *Scoring) fanOff(c *hsm.Context) error {
	s.hw.FanControl(false)
	return nil
}

func (s *Scoring) spin(d Direction) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		if d == Left {
			s.hw.TurnLeft()
		} else {
			s.hw.TurnRight()
		}
		return nil
	}
}

func (s *Scoring) searchLeft(c *hsm.Context) error {
	s.hw.TurnLeftAt(s.speeds.Search)
	return nil
}

func (s *Scoring) enterAligning(c *hsm.Context) error {
	s.hw.TurnRight()
	s.nod.Arm(s.settings.BeaconNod)
	return nil
}

func (s *Scoring) enterAligningFront(c *hsm.Context) error {
	s.enterAligning(c)
	s.backupSearch.Arm(s.settings.BackupSearch)
	return nil
}

func (s *Scoring) exitAligningFront(c *hsm.Context) error {
	s.hw.FullStop()
	s.passes++
	return nil
}

func (s *Scoring) enterBackingUp(c *hsm.Context) error {
	s.hw.GoBackward(s.speeds.Full)
	return nil
}

func (s *Scoring) cautionReverse(c *hsm.Context) error {
	s.hw.GoBackward(s.speeds.Caution)
	s.motion.Arm(s.settings.Caution)
	return nil
}

func (s *Scoring) fullReverse(c *hsm.Context) error {
	s.hw.GoBackward(s.speeds.Full)
	return nil
}

func (s *Scoring) enterClearance(c *hsm.Context) error {
	s.hw.GoForward(s.speeds.Full)
	s.motion.Arm(s.settings.Clearance)
	return nil
}

func (s *Scoring) enterAlignment(c *hsm.Context) error {
	s.hw.GoForward(s.speeds.Full)
	if s.passes <= 1 {
		s.motion.Arm(s.settings.FirstAlign)
	} else {
		s.motion.Arm(s.settings.SecondAlign)
	}
	return nil
}

// acquired records the tick a bracketing beacon was found
func (s *Scoring) acquired(at *int64) func(*hsm.Context) error {
	return func(c *hsm.Context) error {
		*at = s.timers.Now()
		s.hw.FullStop()
		return nil
	}
}

// enterBisecting swings back half the way between the left and right bins
func (s *Scoring) enterBisecting(c *hsm.Context) error {
	half := (s.rightAt - s.leftAt) / 2
	if half < 0 {
		half = 0
	}
	s.hw.TurnLeft()
	s.motion.Arm(s.timers.Duration(half))
	return nil
}

func (s *Scoring) enterUnloading(c *hsm.Context) error {
	s.hw.FullStop()
	s.hw.FanControl(false)
	s.unloadDelay.Arm(s.settings.FanSpinDown)
	return nil
}

func (s *Scoring) pullAway(c *hsm.Context) error {
	s.hw.GoForward(s.speeds.Full)
	s.bump.Arm(s.settings.ForwardBump)
	return nil
}

func (s *Scoring) ram(c *hsm.Context) error {
	s.hw.GoBackward(s.speeds.Full)
	return nil
}

func (s *Scoring) rammed(c *hsm.Context) error {
	s.hw.FullStop()
	s.motion.Arm(s.settings.UnloadSettle)
	return nil
}

func (s *Scoring) enterShuffling(c *hsm.Context) error {
	s.shuffleOnce(c)
	s.shuffle.Arm(s.settings.Shuffle)
	return nil
}

func (s *Scoring) shuffleOnce(c *hsm.Context) error {
	if s.shuffleD == Left {
		s.hw.TurnLeft()
	} else {
		s.hw.TurnRight()
	}
	s.shuffleD = s.shuffleD.Other()
	s.shuffleStep.Arm(s.settings.ShuffleStep)
	return nil
}

func (s *Scoring) binEmpty(c *hsm.Context) error {
	c.Logger.Info("bin unloaded", "bin", s.target.ID)
	c.Return(hsm.Event{ID: EvBallBinEmpty, Param: s.target.ID})
	return nil
}

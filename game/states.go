// Package game holds the HIPPOS game machines: the top-level game phases
// and the gathering, scoring and defending behaviours nested under them.
package game

import (
	"fmt"
	"strings"

	"github.com/hippos-robot/hsm"
)

// Top-level states
const (
	StatePreGame   hsm.StateID = "pre_game"
	StatePlaying   hsm.StateID = "playing"
	StateGathering hsm.StateID = "gathering"
	StateScoring   hsm.StateID = "scoring"
	StateDefending hsm.StateID = "defending"
	StateGameOver  hsm.StateID = "game_over"
)

// Gathering states
const (
	StateFullSpeedAhead hsm.StateID = "full_speed_ahead"
	StateHalfSpeedAhead hsm.StateID = "half_speed_ahead"
	StateTurningLeft    hsm.StateID = "turning_left"
	StateTurningRight   hsm.StateID = "turning_right"
	StateFullReverse    hsm.StateID = "full_reverse"
	StateHalfReverse    hsm.StateID = "half_reverse"
	stateChooseTurn     hsm.StateID = "choose_turn"
)

// Scoring states
const (
	StateAligningRearBeacon      hsm.StateID = "aligning_rear_beacon"
	StateBackingUp               hsm.StateID = "backing_up"
	StateDrivingForwardClearance hsm.StateID = "driving_forward_clearance"
	StateAligningFrontBeacon     hsm.StateID = "aligning_front_beacon"
	StateFindingLeftBeacon       hsm.StateID = "finding_left_beacon"
	StateFindingRightBeacon      hsm.StateID = "finding_right_beacon"
	StateBisectingAngle          hsm.StateID = "bisecting_angle"
	StateDrivingForwardAlignment hsm.StateID = "driving_forward_alignment"
	StateUnloading               hsm.StateID = "unloading"
	StateShuffling               hsm.StateID = "shuffling"
)

// Defending states
const (
	StateDrivingAwayFromWall   hsm.StateID = "driving_away_from_wall"
	StateWaiting               hsm.StateID = "waiting"
	StateAligningPerpendicular hsm.StateID = "aligning_perpendicular"
	StatePushingForward        hsm.StateID = "pushing_forward"
	StatePushingBackward       hsm.StateID = "pushing_backward"
	StateResetting             hsm.StateID = "resetting"
	StateRealigning            hsm.StateID = "realigning"
)

// Game events
const (
	EvGameStart         hsm.EventID = "game_start"
	EvBeaconFront       hsm.EventID = "beacon_front"
	EvBeaconRear        hsm.EventID = "beacon_rear"
	EvLeftTapeDetected  hsm.EventID = "left_tape_detected"
	EvRightTapeDetected hsm.EventID = "right_tape_detected"
	EvFrontBumped       hsm.EventID = "front_bumped"
	EvRearBumped        hsm.EventID = "rear_bumped"
	EvBallBinEmpty      hsm.EventID = "ball_bin_empty"
	EvDangerWallLeft    hsm.EventID = "danger_wall_left"
	EvDangerWallRight   hsm.EventID = "danger_wall_right"
	EvNoDangerWall      hsm.EventID = "no_danger_wall"
)

// Direction is a turn direction
type Direction int

// ParseDirection parses "left" or "right"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return Right, fmt.Errorf("unknown direction %q", s)
}

const (
	Right Direction = iota
	Left
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Other returns the opposite direction
func (d Direction) Other() Direction {
	if d == Left {
		return Right
	}
	return Left
}

// SubMachine is a behaviour nested under a top-level state
type SubMachine interface {
	Start(ev hsm.Event) error
	Handle(ev hsm.Event) (hsm.Event, error)
	Stop() error
	State() hsm.StateID
}

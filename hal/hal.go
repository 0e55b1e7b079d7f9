// Package hal declares the hardware capabilities the game machines drive.
package hal

import (
	"github.com/hippos-robot/hsm/field"
	"golang.org/x/exp/constraints"
)

// Speeds are duty percentages
const (
	MinSpeed  = 0
	FullSpeed = 100
)

// Motion drives the wheels
type Motion interface {
	GoForward(speed int)
	GoBackward(speed int)
	// TurnLeft and TurnRight spin in place at full speed
	TurnLeft()
	TurnRight()
	TurnLeftAt(speed int)
	TurnRightAt(speed int)
	FullStop()
}

// Fan controls the ball collection fan
type Fan interface {
	FanControl(on bool)
}

// Indicator drives the team lights
type Indicator interface {
	ShowTeam(team field.Team)
	AllLightsOn()
}

// Hardware bundles every capability
type Hardware interface {
	Motion
	Fan
	Indicator
}

// Clamp limits v to [lo, hi]
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Speed clamps a requested speed to the valid duty range
func Speed(speed int) int {
	return Clamp(speed, MinSpeed, FullSpeed)
}

// Package field models the playing field: teams, scoring bins, which bins
// the rotating wall leaves open, and the defending zones around a bin.
package field

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Team is the side the robot plays for
type Team int

const (
	TeamUnknown Team = iota
	Red
	Blue
)

func (t Team) String() string {
	switch t {
	case Red:
		return "red"
	case Blue:
		return "blue"
	}
	return "unknown"
}

// ParseTeam parses "red" or "blue"
func ParseTeam(s string) (Team, error) {
	switch s {
	case "red":
		return Red, nil
	case "blue":
		return Blue, nil
	}
	return TeamUnknown, fmt.Errorf("unknown team %q", s)
}

// TeamForBeacon maps the first beacon seen before the game to a side.
// Beacons 1 and 4 stand on the red half, 2 and 3 on the blue half.
func TeamForBeacon(beacon int) (Team, bool) {
	switch beacon {
	case 1, 4:
		return Red, true
	case 2, 3:
		return Blue, true
	}
	return TeamUnknown, false
}

// NumBins is the number of scoring bins; ids run 1..NumBins
const NumBins = 4

// ValidBin reports whether id names a bin
func ValidBin(id int) bool {
	return id >= 1 && id <= NumBins
}

// Opposite returns the bin across the field from id
func Opposite(id int) int {
	return Wrap(id+1, NumBins) + 1
}

// Left returns the bin to the left of id, seen from id
func Left(id int) int {
	return Wrap(id, NumBins) + 1
}

// Right returns the bin to the right of id, seen from id
func Right(id int) int {
	return Wrap(id+2, NumBins) + 1
}

// Wrap reduces v into [0, m)
func Wrap[T constraints.Integer](v, m T) T {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

// Degrees is any integer type wide enough to hold a full turn
type Degrees interface {
	~int | ~int16 | ~int32 | ~int64 | ~uint | ~uint16 | ~uint32 | ~uint64
}

// Angle normalises a wall angle into [0, 360)
func Angle[T Degrees](deg T) T {
	return Wrap(deg, 360)
}

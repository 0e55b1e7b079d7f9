package field

import (
	"fmt"
	"sort"
)

// Availability is how reachable a bin is for the current wall position
type Availability int

const (
	Blocked Availability = iota
	Partial
	Full
)

func (a Availability) String() string {
	switch a {
	case Full:
		return "full"
	case Partial:
		return "partial"
	}
	return "blocked"
}

// Bin is the scoring view of one bin, rebuilt every time a target is picked
type Bin struct {
	ID           int
	Balls        int
	Availability Availability
}

func (b Bin) String() string {
	return fmt.Sprintf("bin%d(%s,%d)", b.ID, b.Availability, b.Balls)
}

// Sector boundaries of the rotating wall, in degrees
var SectorBounds = [8]int{32, 58, 122, 148, 212, 238, 302, 328}

type sector struct {
	lo, hi      int
	full        map[Team][]int
	partialBins []int
}

// Sectors are half-open [lo, hi). The first one wraps through zero.
var sectors = []sector{
	{328, 32, map[Team][]int{Red: {1, 4}, Blue: {2, 3}}, nil},
	{32, 58, map[Team][]int{Red: {1}, Blue: {3}}, []int{2, 4}},
	{58, 122, map[Team][]int{Red: {1, 2}, Blue: {3, 4}}, nil},
	{122, 148, map[Team][]int{Red: {2}, Blue: {4}}, []int{1, 3}},
	{148, 212, map[Team][]int{Red: {2, 3}, Blue: {1, 4}}, nil},
	{212, 238, map[Team][]int{Red: {3}, Blue: {1}}, []int{2, 4}},
	{238, 302, map[Team][]int{Red: {3, 4}, Blue: {1, 2}}, nil},
	{302, 328, map[Team][]int{Red: {4}, Blue: {2}}, []int{1, 3}},
}

func (s sector) contains(angle int) bool {
	if s.lo > s.hi {
		return angle >= s.lo || angle < s.hi
	}
	return angle >= s.lo && angle < s.hi
}

// Availabilities returns the availability of bins 1..4 (index 0..3) for a
// wall angle. Unknown teams get everything Partial.
func Availabilities(team Team, wallAngle int) [NumBins]Availability {
	var out [NumBins]Availability
	if team != Red && team != Blue {
		for i := range out {
			out[i] = Partial
		}
		return out
	}

	angle := Angle(wallAngle)
	for _, s := range sectors {
		if !s.contains(angle) {
			continue
		}
		for _, id := range s.full[team] {
			out[id-1] = Full
		}
		for _, id := range s.partialBins {
			out[id-1] = Partial
		}
		break
	}
	return out
}

// Rank orders bins best first: Full before Partial before Blocked, then by
// ball count, highest first. Ties keep their input order.
func Rank(bins []Bin) []Bin {
	out := append([]Bin(nil), bins...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Availability != out[j].Availability {
			return out[i].Availability > out[j].Availability
		}
		return out[i].Balls > out[j].Balls
	})
	return out
}

// Pick returns the best bin of a non-empty list
func Pick(bins []Bin) (Bin, error) {
	if len(bins) == 0 {
		return Bin{}, fmt.Errorf("no bins to pick from")
	}
	return Rank(bins)[0], nil
}

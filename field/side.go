package field

import "sync/atomic"

// Side remembers which team the robot plays for. It is identified once
// from the first beacon seen before the game starts.
type Side struct {
	team atomic.Int32
}

// Identify records the team for beacon if no team is known yet. It returns
// the team and whether this call identified it.
func (s *Side) Identify(beacon int) (Team, bool) {
	team, ok := TeamForBeacon(beacon)
	if !ok {
		return s.Team(), false
	}
	if !s.team.CompareAndSwap(int32(TeamUnknown), int32(team)) {
		return s.Team(), false
	}
	return team, true
}

// Set forces the team
func (s *Side) Set(team Team) {
	s.team.Store(int32(team))
}

// Team returns the identified team or TeamUnknown
func (s *Side) Team() Team {
	return Team(s.team.Load())
}

// Known reports whether the side has been identified
func (s *Side) Known() bool {
	return s.Team() != TeamUnknown
}

package hsm

import "log/slog"

// StateID is a unique identifier for a state
type StateID string

// EventID is a unique identifier for an event type
type EventID string

// StateType classifies the behavior of a state
type StateType int

const (
	// StateNormal is a regular state that waits for events
	StateNormal StateType = iota
	// StateCondition evaluates its condition immediately on entry and moves on
	StateCondition
	// StateFinal is a terminal state, no transitions out
	StateFinal
)

func (t StateType) String() string {
	switch t {
	case StateNormal:
		return "normal"
	case StateCondition:
		return "condition"
	case StateFinal:
		return "final"
	}
	return "unknown"
}

// Logger is the default logger used when none is provided
var Logger = slog.Default()

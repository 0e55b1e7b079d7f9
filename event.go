package hsm

import "fmt"

// Event is the unit of work delivered to services and machines.
// Param is interpreted per event kind: timer id for EventTimeout,
// beacon identity for beacon events, capture seconds for edges.
type Event struct {
	ID    EventID
	Param int
}

// Framework event kinds
const (
	EventNone    EventID = "none"
	EventError   EventID = "error"
	EventInit    EventID = "init"
	EventEntry   EventID = "entry"
	EventExit    EventID = "exit"
	EventTimeout EventID = "timeout"
)

// Consumed is returned by Handle when a machine used the event up.
var Consumed = Event{ID: EventNone}

// IsNone reports whether the event carries nothing to process.
func (e Event) IsNone() bool {
	return e.ID == EventNone || e.ID == ""
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d)", e.ID, e.Param)
}

// PostFunc delivers an event to a queue.
type PostFunc func(Event) error

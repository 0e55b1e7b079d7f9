package hsm

import "log/slog"

// Queue is a bounded FIFO of events feeding one service
type Queue struct {
	name   string
	events chan Event
	logger *slog.Logger
}

// NewQueue creates a queue holding at most size events
func NewQueue(name string, size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		name:   name,
		events: make(chan Event, size),
		logger: Logger,
	}
}

// Post enqueues ev. It never blocks; a full queue drops the event and
// returns ErrQueueFull.
func (q *Queue) Post(ev Event) error {
	select {
	case q.events <- ev:
		return nil
	default:
		q.logger.Warn("event queue full, dropping event", "queue", q.name, "event", ev.ID, "param", ev.Param)
		return ErrQueueFull
	}
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) next() (Event, bool) {
	select {
	case ev := <-q.events:
		return ev, true
	default:
		return Event{}, false
	}
}

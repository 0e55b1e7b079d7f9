package sense

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hippos-robot/hsm"
)

// DefaultDebounce is the minimum spacing between posted edges on a channel
const DefaultDebounce = 100 * time.Millisecond

// Gate tells a source whether its events matter in the current game phase
type Gate func() bool

// Always is a gate that never blocks
func Always() bool { return true }

// EdgeChannel debounces one switch-like input (tape sensor or bumper).
type EdgeChannel struct {
	name   string
	event  hsm.EventID
	tb     *Timebase
	window uint64
	post   hsm.PostFunc
	gate   Gate
	logger *slog.Logger

	mu   sync.Mutex
	last Stamp
	seen bool
}

// NewEdgeChannel creates a channel posting event for edges spaced more than
// window apart.
func NewEdgeChannel(name string, event hsm.EventID, tb *Timebase, window time.Duration, post hsm.PostFunc, gate Gate, logger *slog.Logger) *EdgeChannel {
	if gate == nil {
		gate = Always
	}
	if logger == nil {
		logger = hsm.Logger
	}
	return &EdgeChannel{
		name:   name,
		event:  event,
		tb:     tb,
		window: tb.Counts(window),
		post:   post,
		gate:   gate,
		logger: logger.With("channel", name),
	}
}

// Edge handles an edge captured at. The first edge always counts. Every
// edge restarts the debounce window, posted or not. It reports whether an
// event was posted.
func (c *EdgeChannel) Edge(at Stamp) bool {
	c.mu.Lock()
	fresh := !c.seen || uint64(at-c.last) > c.window
	c.last = at
	c.seen = true
	c.mu.Unlock()

	if !fresh {
		c.logger.Debug("edge bounced")
		return false
	}
	if !c.gate() {
		c.logger.Debug("edge ignored in this phase")
		return false
	}

	ev := hsm.Event{ID: c.event, Param: c.tb.Seconds(at)}
	if err := c.post(ev); err != nil {
		c.logger.Error("edge lost", "error", err)
		return false
	}
	return true
}

// Name returns the channel name
func (c *EdgeChannel) Name() string {
	return c.name
}

// BallCounter tallies balls passing the intake beam. It posts nothing.
type BallCounter struct {
	count atomic.Int32
}

// Edge counts one ball
func (b *BallCounter) Edge() {
	b.count.Add(1)
}

// Count returns the balls collected
func (b *BallCounter) Count() int {
	return int(b.count.Load())
}

// Reset clears the tally
func (b *BallCounter) Reset() {
	b.count.Store(0)
}

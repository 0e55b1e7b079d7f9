package sense

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hippos-robot/hsm"
)

// Beacon watchdog timing
const (
	DefaultNoBeaconAfter = 22 * time.Millisecond
	DefaultWatchPeriod   = 20 * time.Millisecond
)

// beaconPeriods lists the nominal blink period of beacons 1..4 in ms.
// A period one millisecond short also matches.
var beaconPeriods = [4]uint64{20, 18, 16, 14}

// BeaconPeriod returns the nominal blink period of beacon id, 0 for an
// unknown id
func BeaconPeriod(id int) time.Duration {
	if id < 1 || id > len(beaconPeriods) {
		return 0
	}
	return time.Duration(beaconPeriods[id-1]) * time.Millisecond
}

// ClassifyPeriod maps a blink period in whole ms to a beacon identity,
// 0 when it matches none.
func ClassifyPeriod(ms uint64) int {
	for i, p := range beaconPeriods {
		if ms == p || ms == p-1 {
			return i + 1
		}
	}
	return 0
}

// BeaconReceiver decodes one infrared receiver
type BeaconReceiver struct {
	name   string
	event  hsm.EventID
	tb     *Timebase
	post   hsm.PostFunc
	gate   Gate
	logger *slog.Logger

	mu         sync.Mutex
	lastEdge   Stamp
	lastPeriod uint64
	current    int
}

// NewBeaconReceiver creates a receiver posting event with the beacon id
func NewBeaconReceiver(name string, event hsm.EventID, tb *Timebase, post hsm.PostFunc, gate Gate, logger *slog.Logger) *BeaconReceiver {
	if gate == nil {
		gate = Always
	}
	if logger == nil {
		logger = hsm.Logger
	}
	return &BeaconReceiver{
		name:   name,
		event:  event,
		tb:     tb,
		post:   post,
		gate:   gate,
		logger: logger.With("receiver", name),
	}
}

// Edge handles a receiver edge captured at. An event is posted only when
// the period changed, the receiver matters in this phase and the decoded
// beacon differs from the one already reported.
func (r *BeaconReceiver) Edge(at Stamp) bool {
	r.mu.Lock()
	period := r.tb.Millis(r.lastEdge, at)
	r.lastEdge = at
	if period == r.lastPeriod || !r.gate() {
		r.mu.Unlock()
		return false
	}
	r.lastPeriod = period

	id := ClassifyPeriod(period)
	if id == 0 || id == r.current {
		r.mu.Unlock()
		return false
	}
	r.current = id
	r.mu.Unlock()

	r.logger.Debug("beacon", "id", id, "period_ms", period)
	return r.emit(id)
}

// Current returns the beacon currently seen, 0 for none
func (r *BeaconReceiver) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Check reports a lost beacon: if a beacon is being seen and no edge
// arrived for longer than after, identity 0 is posted once.
func (r *BeaconReceiver) Check(now Stamp, after time.Duration) bool {
	r.mu.Lock()
	if r.current == 0 || r.tb.Since(r.lastEdge, now) <= after {
		r.mu.Unlock()
		return false
	}
	r.current = 0
	r.mu.Unlock()

	r.logger.Debug("beacon lost")
	return r.emit(0)
}

func (r *BeaconReceiver) emit(id int) bool {
	if err := r.post(hsm.Event{ID: r.event, Param: id}); err != nil {
		r.logger.Error("beacon event lost", "id", id, "error", err)
		return false
	}
	return true
}

// Beacons groups the front and rear receivers with their shared watchdog
type Beacons struct {
	Front *BeaconReceiver
	Rear  *BeaconReceiver

	tb    *Timebase
	after time.Duration
}

// NewBeacons groups two receivers. after is the silence that counts as a
// lost beacon.
func NewBeacons(tb *Timebase, front, rear *BeaconReceiver, after time.Duration) *Beacons {
	if after <= 0 {
		after = DefaultNoBeaconAfter
	}
	return &Beacons{Front: front, Rear: rear, tb: tb, after: after}
}

// Check runs the no-beacon watchdog on both receivers
func (b *Beacons) Check() {
	now := b.tb.Now()
	b.Front.Check(now, b.after)
	b.Rear.Check(now, b.after)
}

// Package sense turns raw sensor edges into debounced game events.
package sense

import (
	"sync/atomic"
	"time"
)

// Stamp is a wide capture time: overflow count in the high bits, the 16 bit
// hardware counter in the low bits.
type Stamp uint64

// DefaultCountsPerMilli is the capture clock rate
const DefaultCountsPerMilli = 3000

// Timebase extends the 16 bit capture counter with an overflow count.
// Overflow is called from the overflow interrupt, Capture from the capture
// interrupts.
type Timebase struct {
	countsPerMilli uint64
	overflows      atomic.Uint64
	counter        atomic.Uint32
}

// NewTimebase creates a timebase counting countsPerMilli per millisecond
func NewTimebase(countsPerMilli uint64) *Timebase {
	if countsPerMilli == 0 {
		countsPerMilli = DefaultCountsPerMilli
	}
	return &Timebase{countsPerMilli: countsPerMilli}
}

// Overflow records a wrap of the hardware counter
func (t *Timebase) Overflow() {
	t.overflows.Add(1)
}

// Capture stamps an edge latched at counter
func (t *Timebase) Capture(counter uint16) Stamp {
	t.counter.Store(uint32(counter))
	return t.Now()
}

// Now returns the last known wide time
func (t *Timebase) Now() Stamp {
	return Stamp(t.overflows.Load()<<16 + uint64(t.counter.Load()))
}

// Advance moves a simulated counter forward by d, counting the overflows
// it passes, and returns the new time.
func (t *Timebase) Advance(d time.Duration) Stamp {
	total := uint64(t.Now()) + t.Counts(d)
	t.overflows.Store(total >> 16)
	t.counter.Store(uint32(total & 0xFFFF))
	return Stamp(total)
}

// Counts converts d to capture counts
func (t *Timebase) Counts(d time.Duration) uint64 {
	return uint64(d) * t.countsPerMilli / uint64(time.Millisecond)
}

// Millis returns whole milliseconds between two stamps
func (t *Timebase) Millis(from, to Stamp) uint64 {
	return uint64(to-from) / t.countsPerMilli
}

// Since returns the duration between two stamps
func (t *Timebase) Since(from, to Stamp) time.Duration {
	return time.Duration(uint64(to-from) * uint64(time.Millisecond) / t.countsPerMilli)
}

// Seconds returns s in whole seconds since the timebase started
func (t *Timebase) Seconds(s Stamp) int {
	return int(uint64(s) / (t.countsPerMilli * 1000))
}

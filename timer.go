package hsm

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTick is the base tick of the timer bank
const DefaultTick = 2 * time.Millisecond

// TimerBank counts down software timers on a fixed base tick. Expiry posts
// {EventTimeout, id} exactly once and disarms the timer.
type TimerBank struct {
	tick time.Duration
	post PostFunc

	mu     sync.Mutex
	timers []*Timer
	nextID int

	now    atomic.Int64
	logger *slog.Logger
}

// TimerBankOption is a functional option for configuring a TimerBank
type TimerBankOption func(*TimerBank)

// WithTimerLogger sets the logger for the bank
func WithTimerLogger(logger *slog.Logger) TimerBankOption {
	return func(b *TimerBank) {
		b.logger = logger
	}
}

// NewTimerBank creates a bank ticking every tick and posting expiries
// through post.
func NewTimerBank(tick time.Duration, post PostFunc, opts ...TimerBankOption) *TimerBank {
	if tick <= 0 {
		tick = DefaultTick
	}
	b := &TimerBank{
		tick:   tick,
		post:   post,
		nextID: 1,
		logger: Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewTimer allocates a timer handle. Ids are unique within the bank and
// never zero.
func (b *TimerBank) NewTimer(owner, name string) *Timer {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := &Timer{bank: b, id: b.nextID, owner: owner, name: name}
	b.nextID++
	b.timers = append(b.timers, t)
	return t
}

// Tick advances every armed timer by one base tick.
func (b *TimerBank) Tick() {
	b.now.Add(1)

	b.mu.Lock()
	var expired []*Timer
	for _, t := range b.timers {
		if !t.armed {
			continue
		}
		t.remaining--
		if t.remaining <= 0 {
			t.armed = false
			expired = append(expired, t)
		}
	}
	b.mu.Unlock()

	for _, t := range expired {
		b.logger.Debug("timer fired", "timer", t.String(), "id", t.id)
		if err := b.post(Event{ID: EventTimeout, Param: t.id}); err != nil {
			b.logger.Error("timeout lost", "timer", t.String(), "error", err)
		}
	}
}

// Now returns the number of base ticks since the bank was created
func (b *TimerBank) Now() int64 {
	return b.now.Load()
}

// Elapsed returns Now as a duration
func (b *TimerBank) Elapsed() time.Duration {
	return b.Duration(b.Now())
}

// Period returns the base tick period
func (b *TimerBank) Period() time.Duration {
	return b.tick
}

// Ticks converts d to whole base ticks, rounding up, minimum one.
func (b *TimerBank) Ticks(d time.Duration) int64 {
	n := int64((d + b.tick - 1) / b.tick)
	if n < 1 {
		n = 1
	}
	return n
}

// Duration converts a tick count to a duration
func (b *TimerBank) Duration(ticks int64) time.Duration {
	return time.Duration(ticks) * b.tick
}

// Timer is a handle on one countdown in a TimerBank
type Timer struct {
	bank  *TimerBank
	id    int
	owner string
	name  string

	// guarded by bank.mu
	period    int64
	remaining int64
	armed     bool
}

// ID returns the value carried as Param by this timer's timeout events
func (t *Timer) ID() int {
	return t.id
}

// Name returns the timer name
func (t *Timer) Name() string {
	return t.name
}

func (t *Timer) String() string {
	return t.owner + "." + t.name
}

// Set sets the duration used by the next Start without arming.
func (t *Timer) Set(d time.Duration) {
	ticks := t.bank.Ticks(d)
	t.bank.mu.Lock()
	t.period = ticks
	t.bank.mu.Unlock()
}

// Start arms the timer with its last set duration. Starting an armed timer
// restarts the countdown.
func (t *Timer) Start() {
	t.bank.mu.Lock()
	if t.period < 1 {
		t.period = 1
	}
	t.remaining = t.period
	t.armed = true
	t.bank.mu.Unlock()
	t.bank.logger.Debug("timer armed", "timer", t.String(), "ticks", t.period)
}

// Arm sets the duration and starts the timer. The newest duration wins.
func (t *Timer) Arm(d time.Duration) {
	t.Set(d)
	t.Start()
}

// Stop disarms the timer. Stopping a disarmed timer is a no-op.
func (t *Timer) Stop() {
	t.bank.mu.Lock()
	t.armed = false
	t.bank.mu.Unlock()
}

// Active reports whether the timer is armed
func (t *Timer) Active() bool {
	t.bank.mu.Lock()
	defer t.bank.mu.Unlock()
	return t.armed
}

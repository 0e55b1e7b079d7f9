package hsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service consumes events delivered by the dispatcher
type Service interface {
	Run(ev Event) error
}

// ServiceFunc adapts a function to the Service interface
type ServiceFunc func(ev Event) error

// Run calls f(ev)
func (f ServiceFunc) Run(ev Event) error {
	return f(ev)
}

type serviceEntry struct {
	name    string
	service Service
	queue   *Queue
}

type checker struct {
	name  string
	every int64
	due   int64
	fn    func()
}

// Dispatcher owns the service queues, the timer bank and the periodic event
// checkers. Events are delivered one at a time, round robin across services,
// each run to completion before the next is taken.
type Dispatcher struct {
	timers *TimerBank

	mu       sync.Mutex
	services []*serviceEntry
	next     int
	checkers []*checker

	wake   chan struct{}
	logger *slog.Logger
}

// DispatcherOption is a functional option for configuring a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for the dispatcher and its timers
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher with a timer bank ticking every tick
func NewDispatcher(tick time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		wake:   make(chan struct{}, 1),
		logger: Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.timers = NewTimerBank(tick, d.Post, WithTimerLogger(d.logger))
	return d
}

// Timers returns the dispatcher's timer bank
func (d *Dispatcher) Timers() *TimerBank {
	return d.timers
}

// Register adds a service with its own queue. Registration order is the
// dispatch order.
func (d *Dispatcher) Register(name string, svc Service, queueSize int) *Queue {
	q := NewQueue(name, queueSize)
	q.logger = d.logger

	d.mu.Lock()
	d.services = append(d.services, &serviceEntry{name: name, service: svc, queue: q})
	d.mu.Unlock()
	return q
}

// Post delivers ev to every registered service. The first error is
// returned; the other queues still receive the event.
func (d *Dispatcher) Post(ev Event) error {
	d.mu.Lock()
	services := d.services
	d.mu.Unlock()

	var first error
	for _, s := range services {
		if err := s.queue.Post(ev); err != nil && first == nil {
			first = fmt.Errorf("post %s to %s: %w", ev.ID, s.name, err)
		}
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return first
}

// Every runs fn on the tick loop at most once per period
func (d *Dispatcher) Every(name string, period time.Duration, fn func()) {
	every := d.timers.Ticks(period)
	d.mu.Lock()
	d.checkers = append(d.checkers, &checker{
		name:  name,
		every: every,
		due:   d.timers.Now() + every,
		fn:    fn,
	})
	d.mu.Unlock()
}

// DispatchOne delivers a single event. It reports false when every queue
// was empty.
func (d *Dispatcher) DispatchOne() (bool, error) {
	d.mu.Lock()
	services := d.services
	start := d.next
	d.mu.Unlock()

	n := len(services)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		s := services[idx]
		ev, ok := s.queue.next()
		if !ok {
			continue
		}

		d.mu.Lock()
		d.next = (idx + 1) % n
		d.mu.Unlock()

		d.logger.Debug("dispatching", "service", s.name, "event", ev.ID, "param", ev.Param)
		if err := s.service.Run(ev); err != nil {
			return true, fmt.Errorf("service %s: %w", s.name, err)
		}
		return true, nil
	}
	return false, nil
}

// Drain dispatches until all queues are empty
func (d *Dispatcher) Drain() error {
	for {
		ok, err := d.DispatchOne()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Tick advances the timer bank one base tick, runs due checkers and drains
// the queues.
func (d *Dispatcher) Tick() error {
	d.timers.Tick()
	now := d.timers.Now()

	d.mu.Lock()
	checkers := d.checkers
	d.mu.Unlock()

	for _, c := range checkers {
		if now < c.due {
			continue
		}
		c.due = now + c.every
		c.fn()
	}
	return d.Drain()
}

// Run ticks at the base period until ctx is cancelled or a service fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.timers.Period())
	defer ticker.Stop()

	d.logger.Info("dispatcher running", "tick", d.timers.Period(), "services", len(d.services))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Tick(); err != nil {
				return err
			}
		case <-d.wake:
			if err := d.Drain(); err != nil {
				return err
			}
		}
	}
}

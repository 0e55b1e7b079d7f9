// Package fsr talks to the field status reporter, the referee box that
// knows the balls in play, the balls in each bin and the wall angle.
package fsr

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/drivers"
)

// Query is the command byte selecting what the reporter answers
type Query byte

const (
	QueryBallsInPlay Query = 0xFD
	QueryBin1        Query = 0xFC
	QueryBin2        Query = 0xFB
	QueryBin3        Query = 0xFA
	QueryBin4        Query = 0xF9
	QueryWall        Query = 0xF8
)

func (q Query) String() string {
	switch q {
	case QueryBallsInPlay:
		return "balls-in-play"
	case QueryBin1, QueryBin2, QueryBin3, QueryBin4:
		return fmt.Sprintf("bin%d", int(QueryBin1-q)+1)
	case QueryWall:
		return "wall"
	}
	return fmt.Sprintf("query(%#x)", byte(q))
}

// BinQuery returns the query byte for bin 1..4
func BinQuery(bin int) (Query, error) {
	if bin < 1 || bin > 4 {
		return 0, fmt.Errorf("no bin %d", bin)
	}
	return QueryBin1 - Query(bin-1), nil
}

const (
	syncByte = 0xFD
	sendByte = 0x00
)

// Protocol timing
const (
	DefaultSyncGap     = 52 * time.Millisecond
	DefaultByteGap     = 4 * time.Millisecond
	DefaultMaxAttempts = 32
)

// ErrDesync is returned when no valid answer arrived within the attempt budget
var ErrDesync = errors.New("fsr: lost sync")

// Sensor queries the reporter over SPI
type Sensor struct {
	bus         drivers.SPI
	syncGap     time.Duration
	byteGap     time.Duration
	maxAttempts int

	now   func() time.Time
	pause func(time.Duration)
	last  time.Time

	logger *slog.Logger
}

// Option is a functional option for configuring a Sensor
type Option func(*Sensor)

// WithTiming overrides the spacing between sync attempts and between bytes
func WithTiming(syncGap, byteGap time.Duration) Option {
	return func(s *Sensor) {
		s.syncGap = syncGap
		s.byteGap = byteGap
	}
}

// WithMaxAttempts bounds the resynchronisation loop of each query
func WithMaxAttempts(n int) Option {
	return func(s *Sensor) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithPause replaces the busy wait between bytes
func WithPause(pause func(time.Duration)) Option {
	return func(s *Sensor) {
		s.pause = pause
	}
}

// WithClock replaces the wall clock used for sync spacing
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) {
		s.now = now
	}
}

// WithLogger sets the logger for the sensor
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sensor) {
		s.logger = logger
	}
}

// New creates a sensor on bus
func New(bus drivers.SPI, opts ...Option) *Sensor {
	s := &Sensor{
		bus:         bus,
		syncGap:     DefaultSyncGap,
		byteGap:     DefaultByteGap,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		pause:       time.Sleep,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "fsr")
	return s
}

// BallsInPlay returns the number of balls still on the field
func (s *Sensor) BallsInPlay() (int, error) {
	b, err := s.query(QueryBallsInPlay, 0x80, 0xF8)
	if err != nil {
		return 0, err
	}
	return int(b) - 0x80, nil
}

// BallsInBin returns the number of balls scored in bin 1..4
func (s *Sensor) BallsInBin(bin int) (int, error) {
	q, err := BinQuery(bin)
	if err != nil {
		return 0, err
	}
	b, err := s.query(q, 0x01, 0xF1)
	if err != nil {
		return 0, err
	}
	return int(b) - 1, nil
}

// WallAngle returns the rotating wall angle in degrees, 0..358
func (s *Sensor) WallAngle() (int, error) {
	b, err := s.query(QueryWall, 0x01, 0xB4)
	if err != nil {
		return 0, err
	}
	return 2 * (int(b) - 1), nil
}

// query sends q until the reporter answers with the sync byte, then clocks
// out the data byte. Answers outside [lo, hi] restart the exchange.
func (s *Sensor) query(q Query, lo, hi byte) (byte, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.spacing()

		r, err := s.transfer(byte(q))
		if err != nil {
			return 0, fmt.Errorf("fsr %s: %w", q, err)
		}
		if r != syncByte {
			continue
		}

		s.pause(s.byteGap)
		data, err := s.transfer(sendByte)
		if err != nil {
			return 0, fmt.Errorf("fsr %s: %w", q, err)
		}
		if data >= lo && data <= hi {
			return data, nil
		}
		s.logger.Debug("invalid answer", "query", q.String(), "data", data, "attempt", attempt)
	}
	s.logger.Warn("giving up", "query", q.String(), "attempts", s.maxAttempts)
	return 0, fmt.Errorf("fsr %s after %d attempts: %w", q, s.maxAttempts, ErrDesync)
}

func (s *Sensor) spacing() {
	if s.last.IsZero() {
		return
	}
	if d := s.syncGap - s.now().Sub(s.last); d > 0 {
		s.pause(d)
	}
}

func (s *Sensor) transfer(b byte) (byte, error) {
	r, err := s.bus.Transfer(b)
	s.last = s.now()
	return r, err
}

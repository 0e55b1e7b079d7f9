package fsr

import (
	"sync"
)

// Simulator is an SPI bus answering like the reporter. It lets the host
// build run without the referee box.
type Simulator struct {
	mu          sync.Mutex
	ballsInPlay int
	bins        [4]int
	wallAngle   int

	pending Query
	garbage []byte
	queries []Query
}

// NewSimulator creates a simulated reporter with no balls in play, which
// is what the robot sees before the referee starts the game.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// SetBallsInPlay sets the balls still on the field
func (s *Simulator) SetBallsInPlay(n int) {
	s.mu.Lock()
	s.ballsInPlay = n
	s.mu.Unlock()
}

// SetBin sets the balls scored in bin 1..4
func (s *Simulator) SetBin(bin, balls int) {
	if bin < 1 || bin > 4 {
		return
	}
	s.mu.Lock()
	s.bins[bin-1] = balls
	s.mu.Unlock()
}

// SetWallAngle sets the wall angle, rounded down to the 2 degree resolution
// of the protocol
func (s *Simulator) SetWallAngle(deg int) {
	s.mu.Lock()
	s.wallAngle = ((deg % 360) + 360) % 360 &^ 1
	s.mu.Unlock()
}

// Inject queues bytes answered in place of the next transfers
func (s *Simulator) Inject(b ...byte) {
	s.mu.Lock()
	s.garbage = append(s.garbage, b...)
	s.mu.Unlock()
}

// Queries returns the query bytes received so far
func (s *Simulator) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

// Transfer implements drivers.SPI
func (s *Simulator) Transfer(b byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.garbage) > 0 {
		r := s.garbage[0]
		s.garbage = s.garbage[1:]
		return r, nil
	}

	if b == sendByte {
		q := s.pending
		s.pending = 0
		return s.answer(q), nil
	}
	s.pending = Query(b)
	s.queries = append(s.queries, Query(b))
	return syncByte, nil
}

// Tx implements drivers.SPI
func (s *Simulator) Tx(w, r []byte) error {
	for i, b := range w {
		v, err := s.Transfer(b)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = v
		}
	}
	return nil
}

func (s *Simulator) answer(q Query) byte {
	switch q {
	case QueryBallsInPlay:
		return byte(0x80 + min(max(s.ballsInPlay, 0), 0x78))
	case QueryBin1, QueryBin2, QueryBin3, QueryBin4:
		return byte(1 + min(max(s.bins[QueryBin1-q], 0), 0xF0))
	case QueryWall:
		return byte(1 + s.wallAngle/2)
	}
	return 0xFF
}

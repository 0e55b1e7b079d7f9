package sense

import (
	"log/slog"
	"time"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/field"
)

// Polling periods of the event checkers
const (
	DefaultWallPeriod  = 50 * time.Millisecond
	DefaultStartPeriod = 60 * time.Millisecond
)

// Reading is a query against the field status reporter
type Reading func() (int, error)

// WallEvents names the events a WallMonitor posts
type WallEvents struct {
	DangerLeft  hsm.EventID
	DangerRight hsm.EventID
	Safe        hsm.EventID
}

// WallMonitor polls the wall angle while defending and reports zone changes
type WallMonitor struct {
	read   Reading
	zones  func() (field.Zones, bool)
	gate   Gate
	post   hsm.PostFunc
	events WallEvents
	logger *slog.Logger

	zone  field.Zone
	guard field.Zones
}

// NewWallMonitor creates a monitor. zones returns the thresholds of the
// defended bin, false while none is defended.
func NewWallMonitor(read Reading, zones func() (field.Zones, bool), events WallEvents, post hsm.PostFunc, gate Gate, logger *slog.Logger) *WallMonitor {
	if gate == nil {
		gate = Always
	}
	if logger == nil {
		logger = hsm.Logger
	}
	return &WallMonitor{
		read:   read,
		zones:  zones,
		gate:   gate,
		post:   post,
		events: events,
		logger: logger.With("checker", "wall"),
	}
}

// Check takes one wall sample. Bad readings are skipped. Only zone changes
// are posted; the hysteresis band changes nothing.
func (w *WallMonitor) Check() bool {
	if !w.gate() {
		return false
	}
	zones, ok := w.zones()
	if !ok {
		return false
	}
	if zones != w.guard {
		// a new bin is defended
		w.guard = zones
		w.zone = field.ZoneNone
	}
	angle, err := w.read()
	if err != nil {
		w.logger.Warn("bad wall reading", "error", err)
		return false
	}

	zone := zones.Classify(angle)
	if zone == field.ZoneNone || zone == w.zone {
		return false
	}
	w.zone = zone

	var id hsm.EventID
	switch zone {
	case field.ZoneDangerLeft:
		id = w.events.DangerLeft
	case field.ZoneDangerRight:
		id = w.events.DangerRight
	default:
		id = w.events.Safe
	}
	w.logger.Debug("wall zone changed", "zone", zone.String(), "angle", angle)
	if err := w.post(hsm.Event{ID: id, Param: angle}); err != nil {
		w.logger.Error("wall event lost", "error", err)
		return false
	}
	return true
}

// Zone returns the last reported zone
func (w *WallMonitor) Zone() field.Zone {
	return w.zone
}

// Reset forgets the last zone so the next sample is always reported
func (w *WallMonitor) Reset() {
	w.zone = field.ZoneNone
}

// StartDetector watches the balls in play before the game and posts the
// start event when the referee puts balls on the field.
type StartDetector struct {
	read   Reading
	gate   Gate
	post   hsm.PostFunc
	event  hsm.EventID
	logger *slog.Logger

	last int
}

// NewStartDetector creates a detector. The previous count starts at one so
// a robot switched on mid-game must see an empty field first.
func NewStartDetector(read Reading, event hsm.EventID, post hsm.PostFunc, gate Gate, logger *slog.Logger) *StartDetector {
	if gate == nil {
		gate = Always
	}
	if logger == nil {
		logger = hsm.Logger
	}
	return &StartDetector{
		read:   read,
		gate:   gate,
		post:   post,
		event:  event,
		logger: logger.With("checker", "start"),
		last:   1,
	}
}

// Check takes one sample of the balls in play
func (s *StartDetector) Check() bool {
	if !s.gate() {
		return false
	}
	n, err := s.read()
	if err != nil {
		s.logger.Warn("bad balls-in-play reading", "error", err)
		return false
	}

	started := s.last == 0 && n != 0
	s.last = n
	if !started {
		return false
	}
	s.logger.Info("game start detected", "balls", n)
	if err := s.post(hsm.Event{ID: s.event, Param: n}); err != nil {
		s.logger.Error("start event lost", "error", err)
		return false
	}
	return true
}

package hal

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hippos-robot/hsm/field"
)

// Command is one recorded hardware call
type Command struct {
	Op    string
	Value int
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%d)", c.Op, c.Value)
}

// Command names
const (
	OpForward   = "forward"
	OpBackward  = "backward"
	OpLeft      = "left"
	OpRight     = "right"
	OpStop      = "stop"
	OpFan       = "fan"
	OpTeam      = "team"
	OpAllLights = "lights"
)

// Recorder is a Hardware that records every command. It stands in for the
// motor and light drivers on the host.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	logger   *slog.Logger
}

// NewRecorder creates a recorder logging commands at debug level
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger.With("component", "hal")}
}

func (r *Recorder) record(op string, value int) {
	r.mu.Lock()
	r.commands = append(r.commands, Command{Op: op, Value: value})
	r.mu.Unlock()
	r.logger.Debug("command", "op", op, "value", value)
}

func (r *Recorder) GoForward(speed int)  { r.record(OpForward, Speed(speed)) }
func (r *Recorder) GoBackward(speed int) { r.record(OpBackward, Speed(speed)) }
func (r *Recorder) TurnLeft()            { r.record(OpLeft, FullSpeed) }
func (r *Recorder) TurnRight()           { r.record(OpRight, FullSpeed) }
func (r *Recorder) TurnLeftAt(speed int) { r.record(OpLeft, Speed(speed)) }
func (r *Recorder) TurnRightAt(speed int) {
	r.record(OpRight, Speed(speed))
}
func (r *Recorder) FullStop() { r.record(OpStop, 0) }

func (r *Recorder) FanControl(on bool) {
	v := 0
	if on {
		v = 1
	}
	r.record(OpFan, v)
}

func (r *Recorder) ShowTeam(team field.Team) { r.record(OpTeam, int(team)) }
func (r *Recorder) AllLightsOn()             { r.record(OpAllLights, 1) }

// Commands returns a copy of everything recorded so far
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Last returns the most recent command
func (r *Recorder) Last() (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return Command{}, false
	}
	return r.commands[len(r.commands)-1], true
}

// Reset forgets recorded commands
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}

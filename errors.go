package hsm

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when an event is posted to a full queue
	ErrQueueFull = errors.New("event queue full")
	// ErrNotRunning is returned when a stopped machine is asked to do work
	ErrNotRunning = errors.New("machine not running")
)

// Initialisation failure categories
const (
	InitConfig    = "config"
	InitHardware  = "hardware"
	InitFramework = "framework"
	InitMachine   = "machine"
)

// InitError reports a start-up failure together with the subsystem at fault.
type InitError struct {
	Category string
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s init failed: %v", e.Category, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// InitFailed wraps err as an InitError of the given category.
func InitFailed(category string, err error) error {
	if err == nil {
		return nil
	}
	return &InitError{Category: category, Err: err}
}

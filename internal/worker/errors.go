package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned by Start on a lifecycle that is already
	// running or stopping.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNotRunning is returned by Stop on a lifecycle that is not running.
	ErrNotRunning = errors.New("worker not running")
	// ErrUnitPanic marks a fault produced by a recovered panic.
	ErrUnitPanic = errors.New("unit panicked")
)

// FaultError is a unit failure observed by a lifecycle.
type FaultError struct {
	Worker    string
	Iteration uint64
	Err       error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("worker %s iteration %d: %v", e.Worker, e.Iteration, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Panicked reports whether the fault came from a recovered panic.
func (e *FaultError) Panicked() bool { return errors.Is(e.Err, ErrUnitPanic) }

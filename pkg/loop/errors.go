package loop

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLoop      = errors.New("invalid loop")
	ErrNotACollection   = errors.New("loop binding is not a collection")
	ErrIterationFailed  = errors.New("loop iteration failed")
	ErrStopValueReached = errors.New("loop reached its stop value")
	ErrCancelled        = errors.New("loop cancelled")
	ErrIterationCap     = errors.New("loop iteration cap exceeded")
)

// LoopBoundError reports a loop that asked for more iterations than the cap.
// Iterations up to the cap run; the rest are never attempted.
type LoopBoundError struct {
	StepID    string
	Requested int
	Max       int
}

func (e *LoopBoundError) Error() string {
	return fmt.Sprintf("loop %s: %v: %d requested, max %d", e.StepID, ErrIterationCap, e.Requested, e.Max)
}

func (e *LoopBoundError) Unwrap() error {
	return ErrIterationCap
}

package registry

import (
	"errors"
	"fmt"
)

var (
	ErrKindNotRegistered = errors.New("step kind not registered")
	ErrKindNotPermitted  = errors.New("step kind not permitted")
	ErrInvalidInputs     = errors.New("invalid step inputs")
	ErrActionPanicked    = errors.New("step action panicked")
)

// StepExecutionError wraps any failure of a step executor, including input
// validation (Validation is true) and collaborator errors.
type StepExecutionError struct {
	StepID     string
	Kind       string
	Err        error
	Validation bool
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s) failed: %v", e.StepID, e.Kind, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

package template

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedBinding indicates a binding path does not exist in the context.
	ErrUnresolvedBinding = errors.New("unresolved binding")

	// ErrMissingInput indicates a required input is absent from the step definition.
	ErrMissingInput = errors.New("missing required input")
)

// BindingResolutionError reports a required binding that could not be resolved.
type BindingResolutionError struct {
	Input    string // step input the binding belongs to
	Path     string // binding path, e.g. step1.rows.0
	Template any
	Err      error
}

func (e *BindingResolutionError) Error() string {
	cause := e.Err
	if cause == nil {
		cause = ErrUnresolvedBinding
	}

	if e.Path == "" {
		return fmt.Sprintf("input %q: %v", e.Input, cause)
	}

	if e.Input == "" {
		return fmt.Sprintf("%v: {{%s}}", cause, e.Path)
	}

	return fmt.Sprintf("input %q: %v: {{%s}}", e.Input, cause, e.Path)
}

func (e *BindingResolutionError) Unwrap() error {
	if e.Err == nil {
		return ErrUnresolvedBinding
	}

	return e.Err
}

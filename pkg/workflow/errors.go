package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDefinition = errors.New("invalid automation definition")
	ErrNestingTooDeep    = errors.New("sub-automation nesting too deep")
	ErrRunCancelled      = errors.New("run cancelled")

	ErrSubAutomationTimeout = errors.New("sub-automation timed out")
)

// DefinitionError lists every problem found in a definition. It is returned
// before any step runs.
type DefinitionError struct {
	AutomationID string
	Problems     []string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("automation %s: %v: %s", e.AutomationID, ErrInvalidDefinition, strings.Join(e.Problems, "; "))
}

func (e *DefinitionError) Unwrap() error {
	return ErrInvalidDefinition
}

// IsDefinitionError reports whether err carries a DefinitionError.
func IsDefinitionError(err error) bool {
	var defErr *DefinitionError

	return errors.As(err, &defErr)
}

package conditional

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOperator  = errors.New("unknown condition operator")
	ErrNotComparable    = errors.New("values are not comparable")
	ErrInvalidCondition = errors.New("invalid condition")
	ErrNoBranchMatched  = errors.New("no branch condition matched")
)

// BranchNoMatchError is recorded for a branch step whose cases all evaluated
// false under the fail policy.
type BranchNoMatchError struct {
	StepID string
	Cases  []string
}

func (e *BranchNoMatchError) Error() string {
	return fmt.Sprintf("branch %s: %v (evaluated %d cases)", e.StepID, ErrNoBranchMatched, len(e.Cases))
}

func (e *BranchNoMatchError) Unwrap() error {
	return ErrNoBranchMatched
}

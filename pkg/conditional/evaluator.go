package conditional

import (
	"fmt"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

// Evaluate resolves the operands of every comparison in cond against src and
// combines them. AND short-circuits on the first false sub-condition and OR on
// the first true one. An empty AND is true and an empty OR is false.
func Evaluate(cond models.Condition, src template.Source) (bool, error) {
	switch cond.Operator {
	case models.OperatorAnd:
		for i, sub := range cond.Conditions {
			ok, err := Evaluate(sub, src)
			if err != nil {
				return false, fmt.Errorf("AND[%d]: %w", i, err)
			}

			if !ok {
				return false, nil
			}
		}

		return true, nil
	case models.OperatorOr:
		for i, sub := range cond.Conditions {
			ok, err := Evaluate(sub, src)
			if err != nil {
				return false, fmt.Errorf("OR[%d]: %w", i, err)
			}

			if ok {
				return true, nil
			}
		}

		return false, nil
	case models.OperatorEqual, models.OperatorNotEqual, models.OperatorGreaterThan, models.OperatorLessThan:
		return Compare(cond.Operator, template.Resolve(cond.Left, src), template.Resolve(cond.Right, src))
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, cond.Operator)
}

// SelectBranch evaluates the cases in declared order and returns the first
// whose condition holds. Later cases are not evaluated once one matches.
func SelectBranch(branches []models.BranchCase, src template.Source) (models.BranchCase, bool, error) {
	for _, branch := range branches {
		ok, err := Evaluate(branch.Condition, src)
		if err != nil {
			return models.BranchCase{}, false, fmt.Errorf("branch case %s: %w", branch.ID, err)
		}

		if ok {
			return branch, true, nil
		}
	}

	return models.BranchCase{}, false, nil
}

// Validate checks the shape of a condition tree without evaluating it.
func Validate(cond models.Condition) error {
	switch {
	case cond.Operator.IsLogical():
		for i, sub := range cond.Conditions {
			if err := Validate(sub); err != nil {
				return fmt.Errorf("%s[%d]: %w", cond.Operator, i, err)
			}
		}

		return nil
	case cond.Operator.IsComparison():
		if len(cond.Conditions) > 0 {
			return fmt.Errorf("%w: %s takes left and right, not conditions", ErrInvalidCondition, cond.Operator)
		}

		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownOperator, cond.Operator)
}

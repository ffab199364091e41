// Package conditional evaluates condition trees and selects branch cases.
package conditional

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

// Compare applies a comparison operator to two resolved values.
//
// Numbers of any Go type compare numerically, and a numeric string compares
// numerically against a number. A boolean matches its string form. Anything
// else is equal when its JSON encodings match.
func Compare(op models.Operator, left, right any) (bool, error) {
	left, right = template.Strip(left), template.Strip(right)

	switch op {
	case models.OperatorEqual:
		return equal(left, right), nil
	case models.OperatorNotEqual:
		return !equal(left, right), nil
	case models.OperatorGreaterThan, models.OperatorLessThan:
		cmp, err := order(left, right)
		if err != nil {
			return false, err
		}

		if op == models.OperatorGreaterThan {
			return cmp > 0, nil
		}

		return cmp < 0, nil
	case models.OperatorAnd, models.OperatorOr:
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

func equal(left, right any) bool {
	if l, r, ok := numbers(left, right); ok {
		return l == r
	}

	if l, ok := left.(bool); ok {
		if r, ok := right.(string); ok {
			parsed, err := strconv.ParseBool(strings.TrimSpace(r))

			return err == nil && parsed == l
		}
	}

	if r, ok := right.(bool); ok {
		if l, ok := left.(string); ok {
			parsed, err := strconv.ParseBool(strings.TrimSpace(l))

			return err == nil && parsed == r
		}
	}

	leftJSON, errLeft := json.Marshal(left)
	rightJSON, errRight := json.Marshal(right)

	if errLeft != nil || errRight != nil {
		return false
	}

	return bytes.Equal(leftJSON, rightJSON)
}

func order(left, right any) (int, error) {
	if l, r, ok := numbers(left, right); ok {
		switch {
		case l > r:
			return 1, nil
		case l < r:
			return -1, nil
		default:
			return 0, nil
		}
	}

	l, lok := left.(string)
	r, rok := right.(string)

	if lok && rok {
		return strings.Compare(l, r), nil
	}

	return 0, fmt.Errorf("%w: %T and %T", ErrNotComparable, left, right)
}

// numbers converts both operands to float64 when at least one is a real
// number and the other is a number or a numeric string.
func numbers(left, right any) (float64, float64, bool) {
	l, lnum := ToFloat(left)
	r, rnum := ToFloat(right)

	if !lnum || !rnum {
		return 0, 0, false
	}

	_, lstr := left.(string)
	_, rstr := right.(string)

	if lstr && rstr {
		return 0, 0, false
	}

	return l, r, true
}

// ToFloat converts Go numbers and numeric strings to float64.
func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	}

	return 0, false
}

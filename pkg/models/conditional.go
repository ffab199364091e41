package models

// Operator is either a logical combinator or a comparison.
type Operator string

const (
	OperatorAnd         Operator = "AND"
	OperatorOr          Operator = "OR"
	OperatorEqual       Operator = "EQUAL"
	OperatorNotEqual    Operator = "NOT_EQUAL"
	OperatorGreaterThan Operator = "GREATER_THAN"
	OperatorLessThan    Operator = "LESS_THAN"
)

// IsLogical reports whether the operator combines sub-conditions.
func (o Operator) IsLogical() bool {
	return o == OperatorAnd || o == OperatorOr
}

// IsComparison reports whether the operator compares two values.
func (o Operator) IsComparison() bool {
	switch o {
	case OperatorEqual, OperatorNotEqual, OperatorGreaterThan, OperatorLessThan:
		return true
	case OperatorAnd, OperatorOr:
	}

	return false
}

// Condition is a boolean expression tree. Logical nodes use Conditions,
// comparison nodes use Left and Right, both of which may be binding templates.
type Condition struct {
	Operator   Operator    `json:"operator"`
	Conditions []Condition `json:"conditions,omitempty"`
	Left       any         `json:"left,omitempty"`
	Right      any         `json:"right,omitempty"`
}

// Equal builds an EQUAL comparison.
func Equal(left, right any) Condition {
	return Condition{Operator: OperatorEqual, Left: left, Right: right}
}

// NotEqual builds a NOT_EQUAL comparison.
func NotEqual(left, right any) Condition {
	return Condition{Operator: OperatorNotEqual, Left: left, Right: right}
}

// And combines conditions that must all hold.
func And(conditions ...Condition) Condition {
	return Condition{Operator: OperatorAnd, Conditions: conditions}
}

// Or combines conditions of which at least one must hold.
func Or(conditions ...Condition) Condition {
	return Condition{Operator: OperatorOr, Conditions: conditions}
}

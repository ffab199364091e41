// Package filter provides the filter step kind. A filter whose comparison
// does not hold ends the run successfully.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/conditional"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "filter"

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string   { return Kind }
func (*ActionFactory) Name() string { return "Filter" }

func (*ActionFactory) Description() string {
	return "Compares two values and stops the automation when the comparison does not hold."
}

func (*ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(inputs)
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"field": {Description: "Reference value, usually a binding."},
			"condition": {
				Type:    "string",
				Enum:    []any{"EQUAL", "NOT_EQUAL", "GREATER_THAN", "LESS_THAN"},
				Default: "EQUAL",
			},
			"value": {Description: "Value to compare against."},
		},
	}
}

// Action compares Field with Value.
type Action struct {
	Field     any
	Condition models.Operator
	Value     any
}

func NewAction(inputs map[string]any) (*Action, error) {
	condition := models.OperatorEqual

	if raw, ok := inputs["condition"].(string); ok && raw != "" {
		condition = models.Operator(raw)
	}

	if !condition.IsComparison() {
		return nil, fmt.Errorf("%w: %q", conditional.ErrUnknownOperator, condition)
	}

	return &Action{Field: inputs["field"], Condition: condition, Value: inputs["value"]}, nil
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	result, err := conditional.Compare(a.Condition, a.Field, a.Value)
	if errors.Is(err, conditional.ErrNotComparable) {
		logger.DebugContext(ctx, "Filter values are not comparable", "error", err)

		result = false
	} else if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Filter evaluated", "condition", a.Condition, "result", result)

	return map[string]any{
		"result":          result,
		"refValue":        a.Field,
		"comparisonValue": a.Value,
		"success":         true,
	}, nil
}

// Halt stops the run when the comparison did not hold.
func (a *Action) Halt(outputs map[string]any) bool {
	return outputs["result"] == false
}

// Package script provides the executeScript step kind. Scripts are Lua
// function bodies run in a sandbox without io, os or module loading.
package script

import (
	"context"
	"log/slog"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "executeScript"

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string   { return Kind }
func (*ActionFactory) Name() string { return "Execute Script" }

func (*ActionFactory) Description() string {
	return "Runs a Lua script. The run context is available as the steps table; the returned value is the output."
}

func (*ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(inputs)
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"code": {
				Type:        "string",
				Format:      "code",
				Description: "Lua code, for example: return steps.trigger.row.total * 2",
			},
			"inputs": {
				Type:        "object",
				Description: "Extra values exposed to the script as the inputs table.",
			},
		},
		Required: []string{"code"},
	}
}

type Action struct {
	Code   string
	Inputs map[string]any
}

func NewAction(inputs map[string]any) (*Action, error) {
	code, err := actions.RequiredString(inputs, "code")
	if err != nil {
		return nil, err
	}

	extra, err := actions.Map(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	return &Action{Code: code, Inputs: extra}, nil
}

// Execute runs the script with the globals steps, inputs, and inside loops
// currentItem and currentIndex.
func (a *Action) Execute(ctx context.Context, snapshot map[string]any, logger *slog.Logger) (map[string]any, error) {
	globals := map[string]any{
		"steps":  snapshot,
		"inputs": a.Inputs,
	}

	for _, key := range []string{"trigger", "currentItem", "currentIndex"} {
		if value, ok := snapshot[key]; ok {
			globals[key] = value
		}
	}

	value, err := run(ctx, a.Code, globals)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Script executed")

	return map[string]any{"value": value, "success": true}, nil
}

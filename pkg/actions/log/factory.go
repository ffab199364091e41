package log

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "serverLog"

// ActionFactory is the factory for creating Action instances.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return Kind
}

// Name returns the name of the action factory.
func (*ActionFactory) Name() string {
	return "Server Log"
}

// Description returns a brief description of the action.
func (*ActionFactory) Description() string {
	return "Writes a message to the server log. Supports bindings for dynamic content."
}

// Create creates a new Action instance with the provided inputs.
func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}

	return NewAction(inputs)
}

// Schema returns the JSON schema for the action inputs.
func (f *ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"text": {
				Type:        "string",
				Description: "The message to log, for example: Processing order {{trigger.row.id}}",
			},
			"level": {
				Type:        "string",
				Description: "Log level for the message",
				Default:     "info",
				Enum:        []any{"debug", "info", "warn", "warning", "error"},
			},
		},
		Required: []string{"text"},
	}
}

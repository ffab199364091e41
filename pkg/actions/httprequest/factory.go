package httprequest

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "outgoingWebhook"

// ActionFactory creates Action instances.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action from the resolved inputs.
func (h *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(inputs)
}

// ID returns the unique identifier for the action.
func (h *ActionFactory) ID() string {
	return Kind
}

// Name returns the name of the action.
func (h *ActionFactory) Name() string {
	return "Outgoing Webhook"
}

// Description returns a brief description of the action.
func (h *ActionFactory) Description() string {
	return "Sends an HTTP request to a URL with optional headers and body."
}

func (h *ActionFactory) Group() models.KindGroup {
	return models.KindGroupExternal
}

// Schema returns the JSON schema for the action inputs.
func (h *ActionFactory) Schema() *models.JSONSchema {
	zero := 0.0

	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"url": {
				Type:        "string",
				Description: "The URL to send the request to, for example: https://api.example.com/users/{{lookup.id}}",
			},
			"requestMethod": {
				Type:        "string",
				Description: "HTTP method to use",
				Default:     "POST",
				Enum:        []any{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": {
				Description: "HTTP headers as an object or a JSON object string.",
			},
			"requestBody": {
				Description: "Request body. Objects are sent as JSON; strings are sent as is.",
			},
			"retries": {
				Type:        "object",
				Description: "Retry configuration for 5xx responses and transport errors",
				Properties: map[string]*models.Property{
					"attempts": {Type: "integer", Default: 1, Minimum: &zero},
					"delay":    {Type: "integer", Description: "Delay between attempts in milliseconds", Default: 0, Minimum: &zero},
				},
			},
		},
		Required: []string{"url"},
	}
}

// Package protocol defines the contract every step kind implements.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
)

// Action is one configured invocation of a step kind. Inputs are bound at
// Create time; Execute receives a read-only snapshot of the run context.
type Action interface {
	Execute(ctx context.Context, snapshot map[string]any, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory validates resolved inputs and builds an Action for a step kind.
type ActionFactory interface {
	// Create builds the action. A returned error is an input validation failure.
	Create(inputs map[string]any) (Action, error)

	// ID returns the step kind identifier, e.g. createRow.
	ID() string

	Name() string
	Description() string

	// Schema returns the JSON schema of the kind's inputs.
	Schema() *models.JSONSchema
}

// Grouped is implemented by factories whose kind calls an external collaborator.
type Grouped interface {
	Group() models.KindGroup
}

// Halter is implemented by actions that can end a run successfully, such as
// a filter whose condition did not hold.
type Halter interface {
	Halt(outputs map[string]any) bool
}

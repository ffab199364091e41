// Package persistence provides the storage abstraction for automation definitions.
package persistence

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// Persistence stores automation definitions. The engine only reads from it
// during a run; writes come from the HTTP API and CLI.
type Persistence interface {
	Automations(ctx context.Context) ([]*models.AutomationDefinition, error)
	SaveAutomation(ctx context.Context, automation *models.AutomationDefinition) error

	// AutomationByID returns ErrAutomationNotFound when no definition has the id.
	AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error)
	DeleteAutomation(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

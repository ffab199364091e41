// Package postgresql provides PostgreSQL persistence of automation definitions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// postgres driver
	_ "github.com/lib/pq"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
)

// Persistence stores automation definitions in PostgreSQL.
type Persistence struct {
	db          *sql.DB
	automations *AutomationRepository
}

// NewPersistence connects to databaseURL and migrates the automations schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlbase.Migrate(ctx, logger, database, schema); err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		automations: NewAutomationRepository(database, logger),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Automations returns all automations from the database.
func (p *Persistence) Automations(ctx context.Context) ([]*models.AutomationDefinition, error) {
	return p.automations.GetAll(ctx)
}

// AutomationByID returns an automation by its ID.
func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error) {
	return p.automations.GetByID(ctx, id)
}

// SaveAutomation upserts an automation.
func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.AutomationDefinition) error {
	return p.automations.Save(ctx, automation)
}

// DeleteAutomation soft deletes an automation by setting deleted_at timestamp.
func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	return p.automations.Delete(ctx, id)
}

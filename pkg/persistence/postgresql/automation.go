package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// AutomationRepository handles automation-related database operations.
// The full definition is stored as JSONB; id, name and trigger type are
// duplicated into columns for lookups.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

// GetAll returns all automations from the database.
func (r *AutomationRepository) GetAll(ctx context.Context) ([]*models.AutomationDefinition, error) {
	query := `
		SELECT
			id
		  , definition
		FROM automations
		WHERE deleted_at IS NULL
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	automations := make([]*models.AutomationDefinition, 0)

	for rows.Next() {
		automation, err := r.scan(rows)
		if err != nil {
			return nil, err
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*models.AutomationDefinition, error) {
	query := `
		SELECT
			id
		  , definition
		FROM automations
		WHERE id = $1 AND deleted_at IS NULL
	`

	automation, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewAutomationError("AutomationByID", id, persistence.ErrAutomationNotFound)
	}

	if err != nil {
		return nil, err
	}

	return automation, nil
}

// Save upserts an automation. A soft-deleted automation with the same id is revived.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.AutomationDefinition) error {
	definition, err := models.MarshalDefinition(automation)
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO automations (id, name, trigger_type, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , trigger_type = EXCLUDED.trigger_type
		  , definition = EXCLUDED.definition
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query, automation.ID, automation.Name, string(automation.Trigger.Type), definition, now)
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	return nil
}

// Delete soft deletes an automation.
func (r *AutomationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE automations SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id,
	)
	if err != nil {
		return persistence.NewAutomationError("DeleteAutomation", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewAutomationError("DeleteAutomation", id, err)
	}

	if affected == 0 {
		return persistence.NewAutomationError("DeleteAutomation", id, persistence.ErrAutomationNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *AutomationRepository) scan(row scanner) (*models.AutomationDefinition, error) {
	var (
		id         string
		definition []byte
	)

	if err := row.Scan(&id, &definition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	automation, err := models.ParseDefinition(definition)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", persistence.ErrInvalidAutomation, id, err)
	}

	return automation, nil
}

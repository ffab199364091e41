// Package postgresql stores rows in PostgreSQL with the user fields in a
// JSONB column.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	// postgres driver
	_ "github.com/lib/pq"

	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
	"github.com/dukex/stepflow/pkg/rows"
)

var schema = sqlbase.Schema{
	VersionTable: "rows_schema_migrations",
	Migrations: []sqlbase.Migration{
		{
			Version: 1,
			SQL: `
				CREATE TABLE table_rows (
					table_id VARCHAR(255) NOT NULL,
					id VARCHAR(255) NOT NULL,
					revision BIGINT NOT NULL DEFAULT 1,
					data JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
					PRIMARY KEY (table_id, id)
				);

				CREATE INDEX idx_table_rows_created_at ON table_rows(table_id, created_at);
			`,
		},
	},
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens databaseURL and migrates the rows schema.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlbase.Migrate(ctx, logger, database, schema); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, tableID string, data map[string]any) (*rows.Row, error) {
	if err := rows.CheckTable(tableID); err != nil {
		return nil, err
	}

	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}

	now := time.Now().UTC()
	id := uuid.NewString()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO table_rows (table_id, id, revision, data, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $4)
	`, tableID, id, payload, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert row: %w", err)
	}

	return &rows.Row{
		ID:        id,
		TableID:   tableID,
		Revision:  1,
		Data:      maps.Clone(data),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) Get(ctx context.Context, tableID, rowID string) (*rows.Row, error) {
	return s.get(ctx, s.db, tableID, rowID, "")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, db queryer, tableID, rowID, suffix string) (*rows.Row, error) {
	row, err := scan(db.QueryRowContext(ctx, `
		SELECT table_id, id, revision, data, created_at, updated_at
		FROM table_rows
		WHERE table_id = $1 AND id = $2
	`+suffix, tableID, rowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rows.NotFound(tableID, rowID)
	}

	return row, err
}

// Update merges data with jsonb concatenation under a row lock.
func (s *Store) Update(ctx context.Context, tableID, rowID string, data map[string]any) (*rows.Row, *rows.Row, error) {
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode row: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	old, err := s.get(ctx, tx, tableID, rowID, " FOR UPDATE")
	if err != nil {
		return nil, nil, err
	}

	updated, err := scan(tx.QueryRowContext(ctx, `
		UPDATE table_rows
		SET data = data || $3::jsonb, revision = revision + 1, updated_at = $4
		WHERE table_id = $1 AND id = $2
		RETURNING table_id, id, revision, data, created_at, updated_at
	`, tableID, rowID, payload, time.Now().UTC()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit row update: %w", err)
	}

	return updated, old, nil
}

func (s *Store) Delete(ctx context.Context, tableID, rowID string) (*rows.Row, error) {
	row, err := scan(s.db.QueryRowContext(ctx, `
		DELETE FROM table_rows
		WHERE table_id = $1 AND id = $2
		RETURNING table_id, id, revision, data, created_at, updated_at
	`, tableID, rowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rows.NotFound(tableID, rowID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to delete row: %w", err)
	}

	return row, nil
}

// Query loads the table in creation order and filters it in memory.
func (s *Store) Query(ctx context.Context, tableID string, query rows.Query) ([]*rows.Row, error) {
	result, err := s.db.QueryContext(ctx, `
		SELECT table_id, id, revision, data, created_at, updated_at
		FROM table_rows
		WHERE table_id = $1
		ORDER BY created_at, id
	`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}

	defer func() {
		if err := result.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	all := make([]*rows.Row, 0)

	for result.Next() {
		row, err := scan(result)
		if err != nil {
			return nil, err
		}

		all = append(all, row)
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rows.Apply(all, query)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(src scanner) (*rows.Row, error) {
	var (
		row  rows.Row
		data []byte
	)

	if err := src.Scan(&row.TableID, &row.ID, &row.Revision, &data, &row.CreatedAt, &row.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if err := json.Unmarshal(data, &row.Data); err != nil {
		return nil, fmt.Errorf("failed to decode row data: %w", err)
	}

	if row.Data == nil {
		row.Data = map[string]any{}
	}

	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()

	return &row, nil
}

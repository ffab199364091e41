// Package sqlbase holds what the SQL stores share: versioned schema migrations.
package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Migration is one schema change. Versions start at 1 and only grow.
type Migration struct {
	Version int
	SQL     string
}

// Schema is a set of migrations tracked in its own version table, so the
// automation store and the row store can live in one database.
type Schema struct {
	VersionTable string
	Migrations   []Migration
}

var errUnorderedMigrations = errors.New("migration versions must be unique and increasing")

// Migrate brings db up to the latest version of schema. Each migration runs in
// its own transaction together with its version record.
func Migrate(ctx context.Context, logger *slog.Logger, db *sql.DB, schema Schema) error {
	if !slices.IsSortedFunc(schema.Migrations, func(a, b Migration) int { return a.Version - b.Version }) {
		return errUnorderedMigrations
	}

	logger = logger.With("version_table", schema.VersionTable)

	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+schema.VersionTable+` (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", schema.VersionTable, err)
	}

	var current int

	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM "+schema.VersionTable).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0

	for _, migration := range schema.Migrations {
		if migration.Version <= current {
			continue
		}

		if err := apply(ctx, db, schema.VersionTable, migration); err != nil {
			return err
		}

		logger.InfoContext(ctx, "Applied migration", "version", migration.Version)

		applied++
	}

	logger.InfoContext(ctx, "Schema is up to date", "from", current, "applied", applied)

	return nil
}

func apply(ctx context.Context, db *sql.DB, versionTable string, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", migration.Version, err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO "+versionTable+" (version) VALUES ($1)", migration.Version); err != nil {
		return fmt.Errorf("migration %d: failed to record version: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: failed to commit: %w", migration.Version, err)
	}

	return nil
}

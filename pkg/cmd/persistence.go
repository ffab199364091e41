package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/persistence/postgresql"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/rows/memory"
	rowspg "github.com/dukex/stepflow/pkg/rows/postgresql"
	"github.com/dukex/stepflow/pkg/rows/redis"
)

// NewPersistence opens the automation store named by databaseURL: postgres://
// or postgresql:// URLs use PostgreSQL, anything else is a directory of
// definition files (an optional file:// prefix is stripped).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

// NewRowStore opens the row store named by rowsURL: memory:// (the default),
// redis:// or postgres://. close releases the store's connections.
func NewRowStore(ctx context.Context, logger *slog.Logger, rowsURL string) (rows.Store, func() error, error) {
	switch parseProvider(rowsURL) {
	case "redis", "rediss":
		store, err := redis.Open(ctx, rowsURL)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil
	case "postgres", "postgresql":
		store, err := rowspg.NewStore(ctx, logger, rowsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres row store: %w", err)
		}

		return store, store.Close, nil
	case "", "memory":
		return memory.NewStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported row store: %s", rowsURL)
	}
}

func parseProvider(url string) string {
	provider, _, found := strings.Cut(url, "://")
	if !found {
		return ""
	}

	return provider
}

package datasource_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/stepflow/pkg/datasource"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{
			name: "valid catalog",
			yaml: `
datasources:
  crm: {driver: postgres, dsn: "postgres://localhost/crm"}
  shop: {driver: mysql, dsn: "user:pass@tcp(localhost:3306)/shop"}
queries:
  customers:
    datasource: crm
    sql: SELECT id FROM customers WHERE status = $1
    params: [status]
`,
		},
		{
			name: "unsupported driver",
			yaml: `datasources: {x: {driver: sqlite, dsn: "file.db"}}`,
			err:  datasource.ErrUnsupportedDriver,
		},
		{
			name: "unknown datasource",
			yaml: `queries: {q: {datasource: nope, sql: "SELECT 1"}}`,
			err:  datasource.ErrInvalidCatalog,
		},
		{
			name: "empty sql",
			yaml: "datasources: {crm: {driver: postgres}}\nqueries: {q: {datasource: crm, sql: \" \"}}",
			err:  datasource.ErrInvalidCatalog,
		},
		{name: "not yaml", yaml: "queries: [", err: datasource.ErrInvalidCatalog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := datasource.Parse(discard(), []byte(tt.yaml))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, []string{"customers"}, catalog.IDs())
		})
	}
}

func TestCatalog_RunErrors(t *testing.T) {
	catalog, err := datasource.Parse(discard(), []byte(`
datasources: {crm: {driver: postgres, dsn: "postgres://localhost/crm"}}
queries: {q: {datasource: crm, sql: "SELECT $1", params: [a]}}
`))
	require.NoError(t, err)

	_, err = catalog.Run(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, datasource.ErrQueryNotFound)

	_, err = catalog.Run(context.Background(), "q", map[string]any{})
	assert.ErrorIs(t, err, datasource.ErrMissingParameter)
}

func TestCatalog_RunPostgres(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("crm"),
		postgres.WithUsername("stepflow"),
		postgres.WithPassword("stepflow"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	catalog, err := datasource.Parse(discard(), []byte(`
datasources:
  crm: {driver: postgres, dsn: "`+dsn+`"}
queries:
  setup:
    datasource: crm
    sql: CREATE TABLE customers (id SERIAL PRIMARY KEY, name TEXT, status TEXT)
  add:
    datasource: crm
    sql: INSERT INTO customers (name, status) VALUES ($1, $2)
    params: [name, status]
  byStatus:
    datasource: crm
    sql: SELECT name FROM customers WHERE status = $1 ORDER BY name
    params: [status]
`))
	require.NoError(t, err)

	t.Cleanup(func() { _ = catalog.Close() })

	_, err = catalog.Run(ctx, "setup", nil)
	require.NoError(t, err)

	for _, name := range []string{"bea", "ana", "carl"} {
		status := "active"
		if name == "carl" {
			status = "gone"
		}

		res, err := catalog.Run(ctx, "add", map[string]any{"name": name, "status": status})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.RowsAffected)
	}

	res, err := catalog.Run(ctx, "byStatus", map[string]any{"status": "active"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "ana"}, {"name": "bea"}}, res.Rows)
}

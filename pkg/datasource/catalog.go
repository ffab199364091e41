// Package datasource is the named query catalog behind the executeQuery step
// kind. Queries and their connections are declared in YAML; steps refer to
// queries by id and pass parameters by name.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	// Drivers register with database/sql.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

var (
	ErrQueryNotFound     = errors.New("query not found")
	ErrInvalidCatalog    = errors.New("invalid query catalog")
	ErrMissingParameter  = errors.New("missing query parameter")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

var drivers = []string{"postgres", "mysql"}

var readStatement = regexp.MustCompile(`(?is)^\s*(select|with|show|describe|explain)\b|\breturning\b`)

// Source is a database connection declaration.
type Source struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Query is a named SQL statement. Params lists the parameter names in
// placeholder order ($1.. for postgres, ? for mysql).
type Query struct {
	Datasource string   `yaml:"datasource"`
	SQL        string   `yaml:"sql"`
	Params     []string `yaml:"params"`
	MaxRows    int      `yaml:"maxRows"`
}

// Result is what a query produced. Rows is empty for statements that do not
// return rows.
type Result struct {
	Rows         []map[string]any
	RowsAffected int64
}

// Catalog holds the declared queries and lazily opened connections.
type Catalog struct {
	Datasources map[string]Source `yaml:"datasources"`
	Queries     map[string]Query  `yaml:"queries"`

	logger *slog.Logger
	mu     sync.Mutex
	dbs    map[string]*sql.DB
}

// Load reads a catalog file.
func Load(logger *slog.Logger, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query catalog: %w", err)
	}

	return Parse(logger, data)
}

// Parse decodes and checks a catalog.
func Parse(logger *slog.Logger, data []byte) (*Catalog, error) {
	catalog := &Catalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	catalog.logger = logger.With("module", "datasource")
	catalog.dbs = map[string]*sql.DB{}

	if err := catalog.validate(); err != nil {
		return nil, err
	}

	return catalog, nil
}

func (c *Catalog) validate() error {
	for name, source := range c.Datasources {
		if !slices.Contains(drivers, source.Driver) {
			return fmt.Errorf("%w: datasource %s: %w %q", ErrInvalidCatalog, name, ErrUnsupportedDriver, source.Driver)
		}
	}

	for id, query := range c.Queries {
		if _, ok := c.Datasources[query.Datasource]; !ok {
			return fmt.Errorf("%w: query %s uses unknown datasource %q", ErrInvalidCatalog, id, query.Datasource)
		}

		if strings.TrimSpace(query.SQL) == "" {
			return fmt.Errorf("%w: query %s has no sql", ErrInvalidCatalog, id)
		}
	}

	return nil
}

// IDs lists the query ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Queries))
	for id := range c.Queries {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Run executes a query with named parameters.
func (c *Catalog) Run(ctx context.Context, queryID string, params map[string]any) (*Result, error) {
	query, ok := c.Queries[queryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryID)
	}

	args := make([]any, 0, len(query.Params))

	for _, name := range query.Params {
		value, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
		}

		args = append(args, value)
	}

	db, err := c.db(query.Datasource)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "Running query", "query_id", queryID, "datasource", query.Datasource)

	if !readStatement.MatchString(query.SQL) {
		res, err := db.ExecContext(ctx, query.SQL, args...)
		if err != nil {
			return nil, fmt.Errorf("execute query %s: %w", queryID, err)
		}

		affected, _ := res.RowsAffected()

		return &Result{Rows: []map[string]any{}, RowsAffected: affected}, nil
	}

	rows, err := db.QueryContext(ctx, query.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query %s: %w", queryID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out, err := scan(rows, query.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("read query %s: %w", queryID, err)
	}

	return &Result{Rows: out, RowsAffected: int64(len(out))}, nil
}

func (c *Catalog) db(name string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[name]; ok {
		return db, nil
	}

	source := c.Datasources[name]

	db, err := sql.Open(source.Driver, source.DSN)
	if err != nil {
		return nil, fmt.Errorf("open datasource %s: %w", name, err)
	}

	c.dbs[name] = db

	return db, nil
}

// Close closes every opened connection.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for name, db := range c.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close datasource %s: %w", name, err))
		}

		delete(c.dbs, name)
	}

	return errors.Join(errs...)
}

func scan(rows *sql.Rows, maxRows int) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}

	for rows.Next() {
		if maxRows > 0 && len(out) >= maxRows {
			break
		}

		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				record[column] = string(raw)

				continue
			}

			record[column] = values[i]
		}

		out = append(out, record)
	}

	return out, rows.Err()
}

// Package query provides the executeQuery and apiRequest step kinds over a
// datasource catalog.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/datasource"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const (
	Kind           = "executeQuery"
	APIRequestKind = "apiRequest"
)

// Runner runs named queries; *datasource.Catalog implements it.
type Runner interface {
	Run(ctx context.Context, queryID string, params map[string]any) (*datasource.Result, error)
}

type ActionFactory struct {
	kind        string
	name        string
	description string
	runner      Runner
}

func NewActionFactory(runner Runner) *ActionFactory {
	return &ActionFactory{
		kind:        Kind,
		name:        "Execute Query",
		description: "Runs a named query from the datasource catalog with the given parameters.",
		runner:      runner,
	}
}

// NewAPIRequestFactory is executeQuery for queries that call out to an API.
// The result rows are returned as response.
func NewAPIRequestFactory(runner Runner) *ActionFactory {
	return &ActionFactory{
		kind:        APIRequestKind,
		name:        "API Request",
		description: "Runs a named API query from the datasource catalog and returns its response.",
		runner:      runner,
	}
}

// Factories returns every kind backed by the catalog.
func Factories(runner Runner) []protocol.ActionFactory {
	return []protocol.ActionFactory{NewActionFactory(runner), NewAPIRequestFactory(runner)}
}

func (f *ActionFactory) ID() string          { return f.kind }
func (f *ActionFactory) Name() string        { return f.name }
func (f *ActionFactory) Description() string { return f.description }

func (*ActionFactory) Group() models.KindGroup {
	return models.KindGroupExternal
}

func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	action, err := NewAction(f.runner, inputs)
	if err != nil {
		return nil, err
	}

	action.kind = f.kind

	return action, nil
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"query": {
				Type:        "object",
				Description: "queryId selects the query; every other field is a named parameter.",
				Required:    []string{"queryId"},
			},
		},
		Required: []string{"query"},
	}
}

type Action struct {
	kind    string
	runner  Runner
	QueryID string
	Params  map[string]any
}

func NewAction(runner Runner, inputs map[string]any) (*Action, error) {
	query, err := actions.Map(inputs, "query")
	if err != nil {
		return nil, err
	}

	queryID, err := actions.RequiredString(query, "queryId")
	if err != nil {
		return nil, err
	}

	params := maps.Clone(query)
	delete(params, "queryId")

	return &Action{kind: Kind, runner: runner, QueryID: queryID, Params: params}, nil
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("query %s: no datasource catalog configured", a.QueryID)
	}

	result, err := a.runner.Run(ctx, a.QueryID, a.Params)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Query executed", "kind", a.kind, "query_id", a.QueryID, "rows", len(result.Rows))

	list := make([]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		list = append(list, row)
	}

	key := "rows"
	if a.kind == APIRequestKind {
		key = "response"
	}

	return map[string]any{
		key:       list,
		"info":    map[string]any{"rowsAffected": result.RowsAffected},
		"success": true,
	}, nil
}

package row

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/rows"
)

// CreateAction inserts one row.
type CreateAction struct {
	store   rows.Store
	TableID string
	Data    map[string]any
}

func NewCreateAction(store rows.Store, inputs map[string]any) (*CreateAction, error) {
	tableID, data, err := splitRow(inputs)
	if err != nil {
		return nil, err
	}

	return &CreateAction{store: store, TableID: tableID, Data: data}, nil
}

func (a *CreateAction) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger.With("module", "create_row_action").DebugContext(ctx, "Creating row", "table_id", a.TableID)

	created, err := a.store.Create(ctx, a.TableID, a.Data)
	if err != nil {
		return nil, fmt.Errorf("create row in %s: %w", a.TableID, err)
	}

	return rowOutputs(created), nil
}

// UpdateAction merges fields into a row.
type UpdateAction struct {
	store   rows.Store
	TableID string
	RowID   string
	Data    map[string]any
}

func NewUpdateAction(store rows.Store, inputs map[string]any) (*UpdateAction, error) {
	rowID, err := actions.RequiredString(inputs, "rowId")
	if err != nil {
		return nil, err
	}

	tableID, data, err := splitRow(inputs)
	if err != nil {
		return nil, err
	}

	return &UpdateAction{store: store, TableID: tableID, RowID: rowID, Data: data}, nil
}

func (a *UpdateAction) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger.With("module", "update_row_action").DebugContext(ctx, "Updating row",
		"table_id", a.TableID, "row_id", a.RowID)

	updated, _, err := a.store.Update(ctx, a.TableID, a.RowID, a.Data)
	if err != nil {
		return nil, fmt.Errorf("update row %s: %w", a.RowID, err)
	}

	return rowOutputs(updated), nil
}

// DeleteAction removes a row.
type DeleteAction struct {
	store   rows.Store
	TableID string
	RowID   string
}

func NewDeleteAction(store rows.Store, inputs map[string]any) (*DeleteAction, error) {
	tableID, err := actions.RequiredString(inputs, "tableId")
	if err != nil {
		return nil, err
	}

	rowID, err := actions.RequiredString(inputs, "id")
	if err != nil {
		return nil, err
	}

	return &DeleteAction{store: store, TableID: tableID, RowID: rowID}, nil
}

func (a *DeleteAction) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger.With("module", "delete_row_action").DebugContext(ctx, "Deleting row",
		"table_id", a.TableID, "row_id", a.RowID)

	deleted, err := a.store.Delete(ctx, a.TableID, a.RowID)
	if err != nil {
		return nil, fmt.Errorf("delete row %s: %w", a.RowID, err)
	}

	return map[string]any{"row": deleted.Map(), "success": true}, nil
}

// QueryAction lists rows of a table.
type QueryAction struct {
	store   rows.Store
	TableID string
	Query   rows.Query
}

func NewQueryAction(store rows.Store, inputs map[string]any) (*QueryAction, error) {
	tableID, err := actions.RequiredString(inputs, "tableId")
	if err != nil {
		return nil, err
	}

	filters, err := parseFilters(inputs["filters"])
	if err != nil {
		return nil, err
	}

	limit, err := actions.Int(inputs, "limit", 0)
	if err != nil {
		return nil, err
	}

	return &QueryAction{
		store:   store,
		TableID: tableID,
		Query: rows.Query{
			Filters:    filters,
			SortBy:     actions.String(inputs, "sortColumn"),
			Descending: actions.String(inputs, "sortOrder") == "descending",
			Limit:      limit,
		},
	}, nil
}

func (a *QueryAction) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "query_rows_action")

	found, err := a.store.Query(ctx, a.TableID, a.Query)
	if err != nil {
		return nil, fmt.Errorf("query rows of %s: %w", a.TableID, err)
	}

	list := make([]any, 0, len(found))
	for _, r := range found {
		list = append(list, r.Map())
	}

	logger.DebugContext(ctx, "Queried rows", "table_id", a.TableID, "count", len(list))

	return map[string]any{"rows": list, "success": true}, nil
}

// splitRow separates the tableId from the row fields.
func splitRow(inputs map[string]any) (string, map[string]any, error) {
	row, err := actions.Map(inputs, "row")
	if err != nil {
		return "", nil, err
	}

	tableID, err := actions.RequiredString(row, "tableId")
	if err != nil {
		return "", nil, err
	}

	data := maps.Clone(row)
	delete(data, "tableId")
	delete(data, "id")
	delete(data, "revision")

	return tableID, data, nil
}

func rowOutputs(r *rows.Row) map[string]any {
	return map[string]any{
		"row":      r.Map(),
		"id":       r.ID,
		"revision": r.Revision,
		"success":  true,
	}
}

// parseFilters accepts an object of equality matches or a list of filters.
func parseFilters(raw any) ([]rows.Filter, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		filters := make([]rows.Filter, 0, len(v))
		for field, value := range v {
			filters = append(filters, rows.Filter{Field: field, Value: value})
		}

		return filters, nil
	case []any:
		filters := make([]rows.Filter, 0, len(v))

		for i, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("filter %d: expected an object, got %T", i, item)
			}

			field := actions.String(entry, "field")
			if field == "" {
				return nil, fmt.Errorf("filter %d: %w", i, actions.Missing("field"))
			}

			op := models.Operator(actions.String(entry, "operator"))
			if op != "" && !op.IsComparison() {
				return nil, fmt.Errorf("filter %d: unknown operator %q", i, op)
			}

			filters = append(filters, rows.Filter{Field: field, Operator: op, Value: entry["value"]})
		}

		return filters, nil
	default:
		return nil, fmt.Errorf("filters: expected an object or a list, got %T", raw)
	}
}

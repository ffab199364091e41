// Package rows is the table/row store used by the row step kinds and the row
// triggers.
package rows

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/conditional"
	"github.com/dukex/stepflow/pkg/models"
)

var (
	ErrRowNotFound  = errors.New("row not found")
	ErrInvalidTable = errors.New("invalid table id")
)

// Row is one record of a table. Data holds the user fields.
type Row struct {
	ID        string         `json:"id"`
	TableID   string         `json:"tableId"`
	Revision  int64          `json:"revision"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Map flattens the row for step outputs: the user fields plus id and revision.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.Data)+2)
	maps.Copy(out, r.Data)
	out["id"] = r.ID
	out["revision"] = r.Revision

	return out
}

// Filter compares one field of a row with a value.
type Filter struct {
	Field    string          `json:"field"`
	Operator models.Operator `json:"operator"`
	Value    any             `json:"value"`
}

// Query selects rows of a table. Zero Limit means no limit.
type Query struct {
	Filters    []Filter
	SortBy     string
	Descending bool
	Limit      int
}

// Store is a row store.
type Store interface {
	Create(ctx context.Context, tableID string, data map[string]any) (*Row, error)
	Get(ctx context.Context, tableID, rowID string) (*Row, error)

	// Update merges data into the row and returns the new and the previous row.
	Update(ctx context.Context, tableID, rowID string, data map[string]any) (*Row, *Row, error)

	// Delete removes the row and returns it.
	Delete(ctx context.Context, tableID, rowID string) (*Row, error)
	Query(ctx context.Context, tableID string, query Query) ([]*Row, error)
}

// NotFound builds the error returned for a missing row.
func NotFound(tableID, rowID string) error {
	return fmt.Errorf("%w: %s/%s", ErrRowNotFound, tableID, rowID)
}

// CheckTable rejects empty table ids.
func CheckTable(tableID string) error {
	if strings.TrimSpace(tableID) == "" {
		return ErrInvalidTable
	}

	return nil
}

// Apply filters, sorts and limits rows in memory. Stores without a native
// query language share it.
func Apply(all []*Row, query Query) ([]*Row, error) {
	selected := make([]*Row, 0, len(all))

	for _, row := range all {
		ok, err := Matches(row, query.Filters)
		if err != nil {
			return nil, err
		}

		if ok {
			selected = append(selected, row)
		}
	}

	slices.SortStableFunc(selected, func(a, b *Row) int {
		cmp := compareRows(a, b, query.SortBy)
		if query.Descending {
			return -cmp
		}

		return cmp
	})

	if query.Limit > 0 && len(selected) > query.Limit {
		selected = selected[:query.Limit]
	}

	return selected, nil
}

// Matches reports whether row satisfies every filter. A field that cannot be
// ordered against the filter value does not match.
func Matches(row *Row, filters []Filter) (bool, error) {
	fields := row.Map()

	for _, filter := range filters {
		op := filter.Operator
		if op == "" {
			op = models.OperatorEqual
		}

		ok, err := conditional.Compare(op, fields[filter.Field], filter.Value)
		if errors.Is(err, conditional.ErrNotComparable) {
			return false, nil
		}

		if err != nil {
			return false, fmt.Errorf("filter on %s: %w", filter.Field, err)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// compareRows orders by the sort field, falling back to creation order.
func compareRows(a, b *Row, field string) int {
	if field != "" {
		left, right := a.Map()[field], b.Map()[field]

		if less, _ := conditional.Compare(models.OperatorLessThan, left, right); less {
			return -1
		}

		if greater, _ := conditional.Compare(models.OperatorGreaterThan, left, right); greater {
			return 1
		}
	}

	if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
		return cmp
	}

	return strings.Compare(a.ID, b.ID)
}

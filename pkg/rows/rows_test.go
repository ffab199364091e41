package rows_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/rows/memory"
)

func TestApply(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	all := []*rows.Row{
		{ID: "1", Data: map[string]any{"score": 5}, CreatedAt: base},
		{ID: "2", Data: map[string]any{"score": "12"}, CreatedAt: base.Add(time.Second)},
		{ID: "3", Data: map[string]any{}, CreatedAt: base.Add(2 * time.Second)},
	}

	tests := []struct {
		name  string
		query rows.Query
		want  []string
	}{
		{"creation order", rows.Query{}, []string{"1", "2", "3"}},
		{"numeric string compares as number", rows.Query{Filters: []rows.Filter{{Field: "score", Operator: models.OperatorGreaterThan, Value: 10}}}, []string{"2"}},
		{"missing field never matches an ordering", rows.Query{Filters: []rows.Filter{{Field: "score", Operator: models.OperatorLessThan, Value: 100}}}, []string{"1", "2"}},
		{"by id", rows.Query{Filters: []rows.Filter{{Field: "id", Value: "3"}}}, []string{"3"}},
		{"limit", rows.Query{Descending: true, Limit: 1}, []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := rows.Apply(all, tt.query)
			require.NoError(t, err)

			ids := make([]string, 0, len(found))
			for _, row := range found {
				ids = append(ids, row.ID)
			}

			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRow_Map(t *testing.T) {
	row := &rows.Row{ID: "r1", Revision: 3, Data: map[string]any{"name": "ana"}}

	assert.Equal(t, map[string]any{"id": "r1", "revision": int64(3), "name": "ana"}, row.Map())
}

func TestPublishingStore(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "orders", mock.MatchedBy(func(e events.RowChanged) bool {
		return e.Type == events.RowCreatedEvent
	})).Return(nil).Once()
	bus.On("Publish", mock.Anything, "orders", mock.MatchedBy(func(e events.RowChanged) bool {
		return e.Type == events.RowUpdatedEvent && e.OldRow["status"] == "new"
	})).Return(nil).Once()
	bus.On("Publish", mock.Anything, "orders", mock.MatchedBy(func(e events.RowChanged) bool {
		return e.Type == events.RowDeletedEvent
	})).Return(nil).Once()

	store := rows.NewPublishingStore(memory.NewStore(), bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	row, err := store.Create(ctx, "orders", map[string]any{"status": "new"})
	require.NoError(t, err)

	_, _, err = store.Update(ctx, "orders", row.ID, map[string]any{"status": "paid"})
	require.NoError(t, err)

	_, err = store.Delete(ctx, "orders", row.ID)
	require.NoError(t, err)

	_, err = store.Delete(ctx, "orders", row.ID)
	require.ErrorIs(t, err, rows.ErrRowNotFound)

	bus.AssertExpectations(t)
}

package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/actions/filter"
	"github.com/dukex/stepflow/pkg/actions/row"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/rows/memory"
	. "github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/workflow"
)

// archiveDefinition copies the first order of a table into the archive table
// when the table has any row.
func archiveDefinition() *models.AutomationDefinition {
	return CreateTestDefinition(
		WithTrigger(models.TriggerTypeRowCreated, map[string]any{"tableId": "orders"}),
		WithSteps(
			Action("step1", row.QueryKind, map[string]any{"tableId": "{{trigger.row.tableId}}"}),
			Action("step2", filter.Kind, map[string]any{
				"field":     "{{step1.rows.length}}",
				"condition": "GREATER_THAN",
				"value":     0,
			}),
			Action("step3", row.CreateKind, map[string]any{
				"row": map[string]any{
					"tableId": "archive",
					"source":  "{{step1.rows.0}}",
				},
			}),
		),
	)
}

func newScenarioExecutor(store rows.Store) *workflow.Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.NewRegistry(logger)
	for _, factory := range row.Factories(store) {
		reg.RegisterAction(factory)
	}

	reg.RegisterAction(filter.NewActionFactory())

	return workflow.NewExecutor(reg, workflow.DefaultConfig(), logger)
}

func rowCreated(tableID string) models.TriggerEvent {
	return models.TriggerEvent{
		Type:    models.TriggerTypeRowCreated,
		Outputs: map[string]any{"row": map[string]any{"tableId": tableID}},
	}
}

func TestScenario_RowCreatedArchivesFirstRow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	seeded, err := store.Create(ctx, "orders", map[string]any{"customer": "ana"})
	require.NoError(t, err)

	results, err := newScenarioExecutor(store).Run(ctx, archiveDefinition(), rowCreated("orders"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, results.Status)
	require.Len(t, results.Steps, 3)

	queried := results.Steps[0].Outputs.(map[string]any)["rows"].([]any)
	require.Len(t, queried, 1)
	assert.Equal(t, seeded.ID, queried[0].(map[string]any)["id"])

	assert.Equal(t, true, results.Steps[1].Outputs.(map[string]any)["result"])

	archived, err := store.Query(ctx, "archive", rows.Query{})
	require.NoError(t, err)
	require.Len(t, archived, 1)

	assert.Equal(t, map[string]any{
		"id":       seeded.ID,
		"revision": int64(1),
		"customer": "ana",
	}, archived[0].Data["source"])
}

func TestScenario_EmptyTableHaltsAfterFilter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	results, err := newScenarioExecutor(store).Run(ctx, archiveDefinition(), rowCreated("orders"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, results.Status)
	require.Len(t, results.Steps, 2)
	assert.Equal(t, false, results.Steps[1].Outputs.(map[string]any)["result"])

	archived, err := store.Query(ctx, "archive", rows.Query{})
	require.NoError(t, err)
	assert.Empty(t, archived)
}

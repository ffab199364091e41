package cmd

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/actions/row"
	"github.com/dukex/stepflow/pkg/actions/subautomation"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://user@localhost/db", "postgres"},
		{"redis://localhost:6379/0", "redis"},
		{"file://./automations", "file"},
		{"./automations", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, parseProvider(tt.url))
		})
	}
}

func TestNewRowStore(t *testing.T) {
	ctx := context.Background()

	store, closeStore, err := NewRowStore(ctx, discardLogger(), "memory://")
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.NoError(t, closeStore())

	_, _, err = NewRowStore(ctx, discardLogger(), "mongodb://localhost")
	assert.ErrorContains(t, err, "unsupported row store")
}

func TestNewEventBus_Unsupported(t *testing.T) {
	_, err := NewEventBus("nats", "", discardLogger())
	assert.ErrorContains(t, err, "unsupported event bus provider")
}

func TestNewEngine(t *testing.T) {
	ctx := context.Background()

	engine, err := NewEngine(ctx, discardLogger(), Options{
		DatabaseURL: "file://" + t.TempDir(),
		RowsURL:     "memory://",
		EventBus:    "gochannel",
		Engine:      workflow.DefaultConfig(),
	})
	require.NoError(t, err)

	defer engine.Close(ctx)

	assert.True(t, engine.Registry.Has(row.CreateKind))
	assert.True(t, engine.Registry.Has(subautomation.Kind))
	assert.NotNil(t, engine.Bus)

	def := testutil.CreateTestDefinition(
		testutil.WithTrigger(models.TriggerTypeApp, nil),
		testutil.WithSteps(
			testutil.Action("step1", row.CreateKind, map[string]any{
				"row": map[string]any{"tableId": "contacts", "name": "ana"},
			}),
		),
	)

	results, err := engine.Run(ctx, def, models.TriggerEvent{Type: models.TriggerTypeApp, Outputs: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, results.Status)

	stored, err := engine.Rows.Query(ctx, "contacts", rows.Query{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "ana", stored[0].Data["name"])
}

func TestNewRegistry_BuiltInKinds(t *testing.T) {
	reg, err := NewRegistry(discardLogger(), "", Collaborators{})
	require.NoError(t, err)

	for _, kind := range []string{"executeQuery", "apiRequest", "promptLLM", "openai", "extractFileData", "executeScript", "createRow"} {
		assert.True(t, reg.Has(kind), kind)
	}

	assert.False(t, reg.Has("bash"))
	assert.False(t, reg.Has(subautomation.Kind))
}

package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

func sampleAutomation(id string) *models.AutomationDefinition {
	return &models.AutomationDefinition{
		ID:      id,
		Name:    "Sample " + id,
		Trigger: models.Trigger{Type: models.TriggerTypeApp},
		Steps: []models.Step{
			{
				ID:     "log",
				Type:   models.StepTypeAction,
				Action: &models.ActionStep{Kind: "serverLog", Inputs: map[string]any{"message": "hi"}},
			},
		},
	}
}

func TestPersistence_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence("file://" + t.TempDir())

	require.NoError(t, store.SaveAutomation(ctx, sampleAutomation("b")))
	require.NoError(t, store.SaveAutomation(ctx, sampleAutomation("a")))

	loaded, err := store.AutomationByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, sampleAutomation("a"), loaded)

	all, err := store.Automations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestPersistence_YAMLDefinition(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, automationsDir), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, automationsDir, "nightly.yaml"), []byte(`
id: nightly
trigger:
  type: CRON
  inputs:
    expression: "0 2 * * *"
steps: []
`), 0o600))

	store := NewPersistence(root)

	automation, err := store.AutomationByID(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerTypeCron, automation.Trigger.Type)

	require.NoError(t, store.SaveAutomation(context.Background(), automation))
	_, err = os.Stat(filepath.Join(root, automationsDir, "nightly.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPersistence_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	_, err := store.AutomationByID(ctx, "missing")
	assert.True(t, persistence.IsAutomationNotFound(err))

	err = store.DeleteAutomation(ctx, "missing")
	assert.True(t, persistence.IsAutomationNotFound(err))

	_, err = store.AutomationByID(ctx, "../etc/passwd")
	assert.True(t, persistence.IsAutomationNotFound(err))

	all, err := store.Automations(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPersistence_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	require.NoError(t, store.SaveAutomation(ctx, sampleAutomation("a")))
	require.NoError(t, store.DeleteAutomation(ctx, "a"))

	_, err := store.AutomationByID(ctx, "a")
	assert.True(t, persistence.IsAutomationNotFound(err))
}

func TestPersistence_InvalidFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, automationsDir), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, automationsDir, "bad.json"), []byte(`{"id": 5`), 0o600))

	_, err := NewPersistence(root).AutomationByID(context.Background(), "bad")
	assert.True(t, errors.Is(err, persistence.ErrInvalidAutomation))
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(context.Background()))
	assert.Error(t, NewPersistence(filepath.Join(t.TempDir(), "nope")).HealthCheck(context.Background()))
}

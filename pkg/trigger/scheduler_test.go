package trigger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/trigger"
)

func cronDefinition(id, expression string) *models.AutomationDefinition {
	return &models.AutomationDefinition{
		ID:      id,
		Trigger: models.Trigger{Type: models.TriggerTypeCron, Inputs: map[string]any{"expression": expression}},
	}
}

func TestScheduler_Sync(t *testing.T) {
	ctx := context.Background()
	runner := &mockRunner{}

	runner.On("Matching", ctx, models.TriggerTypeCron, "").Return([]*models.AutomationDefinition{
		cronDefinition("hourly", "@hourly"),
		cronDefinition("nightly", "0 3 * * *"),
		cronDefinition("broken", "not a cron"),
	}, nil).Once()

	scheduler := trigger.NewScheduler(runner, discardLogger())
	require.NoError(t, scheduler.Sync(ctx))
	assert.Equal(t, 2, scheduler.Len())

	runner.On("Matching", ctx, models.TriggerTypeCron, "").Return([]*models.AutomationDefinition{
		cronDefinition("nightly", "0 4 * * *"),
	}, nil).Once()

	require.NoError(t, scheduler.Sync(ctx))
	assert.Equal(t, 1, scheduler.Len())
	runner.AssertExpectations(t)
}

func TestScheduler_Fire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := &mockRunner{}

	runner.On("Execute", ctx, "nightly", models.TriggerEvent{
		Type:    models.TriggerTypeCron,
		Outputs: map[string]any{"timestamp": "2026-03-01T12:00:00Z"},
	}).Return(success("nightly"), nil)

	results, err := trigger.NewScheduler(runner, discardLogger()).Fire(ctx, "nightly", now)
	require.NoError(t, err)
	assert.Equal(t, "run-nightly", results.RunID)
	runner.AssertExpectations(t)
}

func TestScheduler_StartStop(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Matching", mock.Anything, models.TriggerTypeCron, "").Return([]*models.AutomationDefinition{
		cronDefinition("yearly", "@yearly"),
	}, nil)

	scheduler := trigger.NewScheduler(runner, discardLogger())
	require.NoError(t, scheduler.Start(context.Background()))
	assert.Equal(t, 1, scheduler.Len())

	scheduler.Stop()
	runner.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

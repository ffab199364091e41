package subautomation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunSubAutomation(
	ctx context.Context, id string, inputs map[string]any, timeout time.Duration,
) (*models.AutomationResults, error) {
	args := m.Called(ctx, id, inputs, timeout)
	if results := args.Get(0); results != nil {
		return results.(*models.AutomationResults), args.Error(1)
	}

	return nil, args.Error(1)
}

func TestNewAction(t *testing.T) {
	action, err := NewAction(nil, map[string]any{
		"automation": map[string]any{"automationId": "child", "orderId": "o-1"},
		"timeout":    "5",
	})
	require.NoError(t, err)
	assert.Equal(t, "child", action.AutomationID)
	assert.Equal(t, map[string]any{"orderId": "o-1"}, action.Fields)
	assert.Equal(t, 5*time.Second, action.Timeout)

	_, err = NewAction(nil, map[string]any{"automation": map[string]any{}})
	assert.Error(t, err)
}

func TestAction_Execute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		results *models.AutomationResults
		err     error
		wantErr error
		status  string
	}{
		{
			name: "child succeeds",
			results: &models.AutomationResults{
				RunID:  "r-1",
				Status: models.StatusSuccess,
				Steps:  []models.StepResult{models.NewSuccessResult("a", "echo", map[string]any{"v": 1})},
			},
			status: "success",
		},
		{
			name: "child partial still succeeds",
			results: &models.AutomationResults{
				Status: models.StatusPartial,
				Steps:  []models.StepResult{models.NewFailureResult("a", "echo", errors.New("soft"))},
			},
			status: "partial",
		},
		{
			name: "child failure fails the step",
			results: &models.AutomationResults{
				Status: models.StatusFailure,
				Steps:  []models.StepResult{models.NewFailureResult("a", "echo", errors.New("hard"))},
			},
			wantErr: ErrChildFailed,
		},
		{
			name:    "runner error",
			err:     errors.New("automation not found"),
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			runner.On("RunSubAutomation", mock.Anything, "child", map[string]any{}, time.Duration(0)).
				Return(tt.results, tt.err)

			action, err := NewActionFactory(runner).Create(map[string]any{
				"automation": map[string]any{"automationId": "child"},
			})
			require.NoError(t, err)

			out, err := action.Execute(context.Background(), nil, logger)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "hard")
			case tt.err != nil:
				assert.ErrorIs(t, err, tt.err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.status, out["status"])
				assert.Len(t, out["value"], len(tt.results.Steps))
			}

			runner.AssertExpectations(t)
		})
	}
}

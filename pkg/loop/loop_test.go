package loop

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
)

// recordingDispatcher echoes its inputs and fails the calls whose index is listed.
type recordingDispatcher struct {
	calls  []registry.Call
	failAt map[int]bool
	cancel context.CancelFunc
}

func (d *recordingDispatcher) Execute(_ context.Context, call registry.Call) (registry.Outcome, error) {
	index := len(d.calls)
	d.calls = append(d.calls, call)

	if d.cancel != nil && index == 0 {
		d.cancel()
	}

	if d.failAt[index] {
		return registry.Outcome{}, &registry.StepExecutionError{StepID: call.StepID, Kind: call.Kind, Err: errors.New("row store unavailable")}
	}

	return registry.Outcome{Outputs: map[string]any{"item": call.Inputs["item"], "index": call.Inputs["index"]}}, nil
}

func intPtr(i int) *int { return &i }

func loopStep(mode models.LoopMode, binding any, iterations *int, policy models.FailurePolicy) *models.Step {
	return &models.Step{
		ID:   "loop",
		Type: models.StepTypeLoop,
		Loop: &models.LoopStep{
			Mode:          mode,
			Binding:       binding,
			Iterations:    iterations,
			FailurePolicy: policy,
			Step: &models.Step{
				ID:   "body",
				Type: models.StepTypeAction,
				Action: &models.ActionStep{
					Kind:   "createRow",
					Inputs: map[string]any{"item": "{{currentItem}}", "index": "{{currentIndex}}"},
				},
			},
		},
	}
}

func fiveItems(t *testing.T) *models.ExecutionContext {
	t.Helper()

	execCtx := models.NewExecutionContext("run", "auto", nil)
	require.NoError(t, execCtx.Set("step1", map[string]any{"rows": []any{"a", "b", "c", "d", "e"}}))

	return execCtx
}

func TestExecutor_CountCapsCollection(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	executor := NewExecutor(dispatcher, 100, slog.Default())

	result := executor.Run(context.Background(), loopStep(models.LoopModeCollection, "{{step1.rows}}", intPtr(3), models.FailurePolicyStop), fiveItems(t))

	require.True(t, result.Success)
	assert.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, result.Iterations, 3)

	for i, iteration := range result.Iterations {
		assert.Equal(t, "body", iteration.StepID)
		require.NotNil(t, iteration.Index)
		assert.Equal(t, i, *iteration.Index)
		assert.Equal(t, i, dispatcher.calls[i].Inputs["index"])
	}

	assert.Equal(t, []any{"a", "b", "c"}, []any{
		dispatcher.calls[0].Inputs["item"],
		dispatcher.calls[1].Inputs["item"],
		dispatcher.calls[2].Inputs["item"],
	})

	outputs := result.Outputs.(map[string]any)
	assert.Equal(t, 3, outputs["iterations"])
	assert.Equal(t, true, outputs["success"])
}

func TestExecutor_StopPolicy(t *testing.T) {
	dispatcher := &recordingDispatcher{failAt: map[int]bool{1: true}}
	executor := NewExecutor(dispatcher, 100, slog.Default())

	result := executor.Run(context.Background(), loopStep(models.LoopModeCollection, "{{step1.rows}}", nil, models.FailurePolicyStop), fiveItems(t))

	assert.False(t, result.Success)
	assert.Equal(t, models.StatusFailure, result.Status)
	require.Len(t, result.Iterations, 2)
	assert.True(t, result.Iterations[0].Success)
	assert.False(t, result.Iterations[1].Success)
	assert.Len(t, dispatcher.calls, 2)
	assert.True(t, errors.Is(result.Err, ErrIterationFailed))
}

func TestExecutor_ContinuePolicy(t *testing.T) {
	dispatcher := &recordingDispatcher{failAt: map[int]bool{1: true}}
	executor := NewExecutor(dispatcher, 100, slog.Default())

	result := executor.Run(context.Background(), loopStep(models.LoopModeCollection, "{{step1.rows}}", nil, models.FailurePolicyContinue), fiveItems(t))

	assert.False(t, result.Success)
	assert.Equal(t, models.StatusPartial, result.Status)
	require.Len(t, result.Iterations, 5)
	assert.False(t, result.Iterations[1].Success)
	assert.True(t, result.Iterations[4].Success)

	outputs := result.Outputs.(map[string]any)
	items := outputs["items"].([]any)
	assert.Nil(t, items[1])
	assert.Equal(t, false, outputs["success"])
}

func TestExecutor_FixedCount(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	executor := NewExecutor(dispatcher, 100, slog.Default())

	result := executor.Run(context.Background(), loopStep(models.LoopModeFixedCount, nil, intPtr(4), models.FailurePolicyStop), models.NewExecutionContext("run", "auto", nil))

	require.True(t, result.Success)
	require.Len(t, dispatcher.calls, 4)
	assert.Equal(t, 3, dispatcher.calls[3].Inputs["item"])
}

func TestExecutor_FixedCountFromBinding(t *testing.T) {
	execCtx := models.NewExecutionContext("run", "auto", map[string]any{"count": 2})
	dispatcher := &recordingDispatcher{}

	result := NewExecutor(dispatcher, 100, slog.Default()).Run(context.Background(), loopStep(models.LoopModeFixedCount, "{{trigger.count}}", nil, ""), execCtx)

	require.True(t, result.Success)
	assert.Len(t, dispatcher.calls, 2)
}

func TestExecutor_IterationCap(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	executor := NewExecutor(dispatcher, 2, slog.Default())

	result := executor.Run(context.Background(), loopStep(models.LoopModeCollection, "{{step1.rows}}", nil, models.FailurePolicyStop), fiveItems(t))

	assert.Equal(t, models.StatusFailure, result.Status)
	assert.Len(t, dispatcher.calls, 2)
	assert.True(t, IsBoundError(result.Err))

	var boundErr *LoopBoundError
	require.True(t, errors.As(result.Err, &boundErr))
	assert.Equal(t, 5, boundErr.Requested)
	assert.Equal(t, 2, boundErr.Max)
}

func TestExecutor_FixedCountAboveCap(t *testing.T) {
	tests := []struct {
		name       string
		iterations *int
		binding    any
		input      map[string]any
		requested  int
	}{
		{name: "literal count", iterations: intPtr(1 << 50), requested: 1 << 50},
		{name: "bound count", binding: "{{trigger.count}}", input: map[string]any{"count": 1e300}, requested: math.MaxInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &recordingDispatcher{}
			executor := NewExecutor(dispatcher, 3, slog.Default())

			result := executor.Run(context.Background(), loopStep(models.LoopModeFixedCount, tt.binding, tt.iterations, models.FailurePolicyStop), models.NewExecutionContext("run", "auto", tt.input))

			assert.Equal(t, models.StatusFailure, result.Status)
			assert.Len(t, dispatcher.calls, 3)

			var boundErr *LoopBoundError
			require.True(t, errors.As(result.Err, &boundErr))
			assert.Equal(t, tt.requested, boundErr.Requested)
			assert.Equal(t, 3, boundErr.Max)
		})
	}
}

func TestExecutor_StopValue(t *testing.T) {
	step := loopStep(models.LoopModeCollection, "{{step1.rows}}", nil, models.FailurePolicyStop)
	step.Loop.StopValue = "c"

	dispatcher := &recordingDispatcher{}
	result := NewExecutor(dispatcher, 100, slog.Default()).Run(context.Background(), step, fiveItems(t))

	assert.Equal(t, models.StatusFailure, result.Status)
	assert.Len(t, result.Iterations, 2)
	assert.True(t, errors.Is(result.Err, ErrStopValueReached))
}

func TestExecutor_CancelledBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := &recordingDispatcher{cancel: cancel}
	result := NewExecutor(dispatcher, 100, slog.Default()).Run(ctx, loopStep(models.LoopModeCollection, "{{step1.rows}}", nil, models.FailurePolicyContinue), fiveItems(t))

	assert.Len(t, dispatcher.calls, 1)
	assert.Equal(t, models.StatusFailure, result.Status)
	assert.True(t, errors.Is(result.Err, ErrCancelled))
	assert.True(t, errors.Is(result.Err, context.Canceled))
}

func TestExecutor_BindingErrors(t *testing.T) {
	tests := []struct {
		name string
		step *models.Step
	}{
		{"unresolved collection", loopStep(models.LoopModeCollection, "{{missing.rows}}", nil, models.FailurePolicyStop)},
		{"not a collection", loopStep(models.LoopModeCollection, "{{step1}}", nil, models.FailurePolicyStop)},
		{"fixed count without count", loopStep(models.LoopModeFixedCount, nil, nil, models.FailurePolicyStop)},
		{"unknown mode", loopStep("WHILE", nil, nil, models.FailurePolicyStop)},
		{"no body", &models.Step{ID: "loop", Type: models.StepTypeLoop, Loop: &models.LoopStep{Mode: models.LoopModeFixedCount}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &recordingDispatcher{}
			result := NewExecutor(dispatcher, 100, slog.Default()).Run(context.Background(), tt.step, fiveItems(t))

			assert.Equal(t, models.StatusFailure, result.Status)
			assert.NotEmpty(t, result.Error)
			assert.Empty(t, dispatcher.calls)
		})
	}
}

func TestExecutor_DoesNotWriteParentContext(t *testing.T) {
	execCtx := fiveItems(t)
	NewExecutor(&recordingDispatcher{}, 100, slog.Default()).Run(context.Background(), loopStep(models.LoopModeCollection, "{{step1.rows}}", intPtr(2), ""), execCtx)

	_, ok := execCtx.Get(models.CurrentItemKey)
	assert.False(t, ok)
	assert.Equal(t, []string{"step1", "trigger"}, execCtx.Keys())
}

func TestAsCollection(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected []any
	}{
		{"slice", []any{1, 2}, []any{1, 2}},
		{"typed slice", []string{"x", "y"}, []any{"x", "y"}},
		{"json string", `[{"id":"r1"}, 2]`, []any{map[string]any{"id": "r1"}, float64(2)}},
		{"comma string", "a, b ,c", []any{"a", "b", "c"}},
		{"empty string", "  ", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := AsCollection(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, items)
		})
	}

	_, err := AsCollection(map[string]any{"a": 1})
	assert.True(t, errors.Is(err, ErrNotACollection))

	_, err = AsCollection(nil)
	assert.True(t, errors.Is(err, ErrNotACollection))
}

// Package loop repeats a wrapped action step over a collection or a fixed count.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dukex/stepflow/pkg/conditional"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/template"
)

// DefaultMaxIterations caps a loop when the executor is built without a limit.
const DefaultMaxIterations = 200

// Dispatcher executes one resolved action call.
type Dispatcher interface {
	Execute(ctx context.Context, call registry.Call) (registry.Outcome, error)
}

// Executor runs loop steps. Iterations always run sequentially.
type Executor struct {
	dispatcher    Dispatcher
	maxIterations int
	logger        *slog.Logger
}

func NewExecutor(dispatcher Dispatcher, maxIterations int, logger *slog.Logger) *Executor {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return &Executor{
		dispatcher:    dispatcher,
		maxIterations: maxIterations,
		logger:        logger.With("module", "loop"),
	}
}

// Run executes step, which must be a LOOP step, against execCtx. The returned
// result nests one entry per attempted iteration under the loop's own id.
// execCtx is only read; each iteration works on a derived copy.
func (e *Executor) Run(ctx context.Context, step *models.Step, execCtx *models.ExecutionContext) models.StepResult {
	spec := step.Loop
	if spec == nil || spec.Step == nil || spec.Step.Action == nil {
		return models.NewFailureResult(step.ID, step.Kind(), fmt.Errorf("%w: loop %s needs a wrapped action step", ErrInvalidLoop, step.ID))
	}

	items, requested, err := e.items(spec, execCtx)
	if err != nil {
		return models.NewFailureResult(step.ID, step.Kind(), err)
	}

	var boundErr error
	if requested > e.maxIterations {
		boundErr = &LoopBoundError{StepID: step.ID, Requested: requested, Max: e.maxIterations}
		items = items[:min(len(items), e.maxIterations)]
	}

	logger := e.logger.With("step_id", step.ID, "iterations", len(items), "failure_policy", spec.FailurePolicy)
	logger.Debug("Running loop")

	var stopValue any
	if spec.StopValue != nil {
		stopValue = template.Strip(template.Resolve(spec.StopValue, execCtx))
	}

	var (
		iterations = make([]models.StepResult, 0, len(items))
		outputs    = make([]any, 0, len(items))
		failed     int
		haltErr    error
	)

	for index, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			haltErr = fmt.Errorf("%w before iteration %d: %w", ErrCancelled, index, ctxErr)

			break
		}

		if spec.StopValue != nil {
			if matched, _ := conditional.Compare(models.OperatorEqual, item, stopValue); matched {
				haltErr = fmt.Errorf("%w at iteration %d", ErrStopValueReached, index)

				break
			}
		}

		result := e.iterate(ctx, spec.Step, execCtx.ForIteration(item, index), index, logger)
		iterations = append(iterations, result)

		if result.Success {
			metrics.RecordLoopIteration(string(models.StatusSuccess))
			outputs = append(outputs, result.Outputs)

			continue
		}

		metrics.RecordLoopIteration(string(models.StatusFailure))
		outputs = append(outputs, nil)
		failed++

		if spec.FailurePolicy != models.FailurePolicyContinue {
			haltErr = fmt.Errorf("%w: iteration %d: %s", ErrIterationFailed, index, result.Error)

			break
		}
	}

	result := models.StepResult{
		StepID:     step.ID,
		Kind:       step.Kind(),
		Iterations: iterations,
		Outputs: map[string]any{
			"items":      outputs,
			"iterations": len(iterations),
			"success":    failed == 0 && haltErr == nil && boundErr == nil,
		},
	}

	switch {
	case haltErr != nil:
		result.Status = models.StatusFailure
		result.Err = haltErr
	case boundErr != nil:
		result.Status = models.StatusFailure
		result.Err = boundErr
	case failed > 0:
		result.Status = models.StatusPartial
		result.Err = fmt.Errorf("%w: %d of %d iterations", ErrIterationFailed, failed, len(iterations))
	default:
		result.Status = models.StatusSuccess
		result.Success = true
	}

	if result.Err != nil {
		result.Error = result.Err.Error()
		logger.Warn("Loop finished with failures", "status", result.Status, "error", result.Error)
	}

	return result
}

func (e *Executor) iterate(
	ctx context.Context,
	body *models.Step,
	iterCtx *models.ExecutionContext,
	index int,
	logger *slog.Logger,
) models.StepResult {
	kind := body.Action.Kind

	var result models.StepResult

	inputs, err := template.ResolveInputs(body.Action.Inputs, body.Action.Required, iterCtx)
	if err != nil {
		result = models.NewFailureResult(body.ID, kind, &registry.StepExecutionError{StepID: body.ID, Kind: kind, Err: err})
	} else {
		outcome, execErr := e.dispatcher.Execute(ctx, registry.Call{
			StepID:   body.ID,
			Kind:     kind,
			Inputs:   inputs,
			Snapshot: iterCtx.Snapshot(),
			Logger:   logger.With("iteration", index),
		})

		if execErr != nil {
			result = models.NewFailureResult(body.ID, kind, execErr)
		} else {
			result = models.NewSuccessResult(body.ID, kind, outcome.Outputs)
		}
	}

	result.Index = &index

	return result
}

// items resolves the iteration source and reports how many iterations were
// asked for. A collection is capped by an explicit iteration count; FIXED_COUNT
// iterates the indices themselves, never allocating past the cap.
func (e *Executor) items(spec *models.LoopStep, execCtx *models.ExecutionContext) ([]any, int, error) {
	switch spec.Mode {
	case models.LoopModeCollection:
		value, err := template.ResolveRequired(spec.Binding, execCtx)
		if err != nil {
			return nil, 0, err
		}

		items, err := AsCollection(value)
		if err != nil {
			return nil, 0, err
		}

		if spec.Iterations != nil && *spec.Iterations >= 0 && *spec.Iterations < len(items) {
			items = items[:*spec.Iterations]
		}

		return items, len(items), nil
	case models.LoopModeFixedCount:
		count, err := fixedCount(spec, execCtx)
		if err != nil {
			return nil, 0, err
		}

		items := make([]any, min(count, e.maxIterations))
		for i := range items {
			items[i] = i
		}

		return items, count, nil
	}

	return nil, 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidLoop, spec.Mode)
}

func fixedCount(spec *models.LoopStep, execCtx *models.ExecutionContext) (int, error) {
	if spec.Iterations != nil {
		if *spec.Iterations < 0 {
			return 0, fmt.Errorf("%w: negative iteration count %d", ErrInvalidLoop, *spec.Iterations)
		}

		return *spec.Iterations, nil
	}

	if spec.Binding == nil {
		return 0, fmt.Errorf("%w: FIXED_COUNT needs iterations", ErrInvalidLoop)
	}

	value, err := template.ResolveRequired(spec.Binding, execCtx)
	if err != nil {
		return 0, err
	}

	count, ok := conditional.ToFloat(value)
	if !ok || count < 0 || count != math.Trunc(count) {
		return 0, fmt.Errorf("%w: iteration count %v is not a non-negative integer", ErrInvalidLoop, value)
	}

	if count > math.MaxInt32 {
		return math.MaxInt32, nil
	}

	return int(count), nil
}

// AsCollection turns a resolved binding into the items to iterate. Strings are
// read as a JSON array when they hold one and split on commas otherwise.
func AsCollection(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: binding resolved to null", ErrNotACollection)
	case []any:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return []any{}, nil
		}

		if parsed := gjson.Parse(trimmed); parsed.IsArray() && gjson.Valid(trimmed) {
			return toSlice(parsed), nil
		}

		parts := strings.Split(trimmed, ",")
		items := make([]any, 0, len(parts))

		for _, part := range parts {
			items = append(items, strings.TrimSpace(part))
		}

		return items, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotACollection, err)
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: got %T", ErrNotACollection, value)
	}

	return toSlice(parsed), nil
}

func toSlice(result gjson.Result) []any {
	array := result.Array()

	items := make([]any, 0, len(array))
	for _, item := range array {
		items = append(items, item.Value())
	}

	return items
}

// IsBoundError reports whether err is a LoopBoundError.
func IsBoundError(err error) bool {
	var boundErr *LoopBoundError

	return errors.As(err, &boundErr)
}

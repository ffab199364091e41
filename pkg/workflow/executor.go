// Package workflow runs automations: it validates a definition, walks its steps
// in order and assembles the result trail of the run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/stepflow/pkg/conditional"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	steplog "github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/loop"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/template"
)

// Dispatcher is the step registry as seen by the coordinator.
type Dispatcher interface {
	loop.Dispatcher
	KindChecker
}

type Executor struct {
	dispatcher Dispatcher
	loops      *loop.Executor
	config     Config
	logger     *slog.Logger
	tracer     trace.Tracer
	publisher  eventbus.EventPublisher
}

type Option func(*Executor)

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithPublisher publishes run lifecycle events on every run.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

func NewExecutor(dispatcher Dispatcher, config Config, logger *slog.Logger, opts ...Option) *Executor {
	config = config.withDefaults()

	e := &Executor{
		dispatcher: dispatcher,
		loops:      loop.NewExecutor(dispatcher, config.MaxLoopIterations, logger),
		config:     config,
		logger:     logger.With("module", "workflow_executor"),
		tracer:     otelhelper.Tracer(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Config returns the effective engine configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Run executes def for one trigger event. A definition problem or an exceeded
// nesting depth is returned as an error before any step runs; every step
// failure is recorded in the returned results instead.
func (e *Executor) Run(ctx context.Context, def *models.AutomationDefinition, trigger models.TriggerEvent) (*models.AutomationResults, error) {
	if err := ValidateDefinition(def, e.dispatcher); err != nil {
		return nil, err
	}

	depth := 0
	if parent, ok := protocol.RunFromContext(ctx); ok {
		depth = parent.Depth + 1
	}

	if depth > e.config.MaxNesting {
		return nil, fmt.Errorf("%w: automation %s at depth %d (max %d)", ErrNestingTooDeep, def.ID, depth, e.config.MaxNesting)
	}

	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	if trigger.Type == "" {
		trigger.Type = def.Trigger.Type
	}

	runID := uuid.NewString()

	r := &run{
		executor: e,
		def:      def,
		trigger:  trigger,
		info:     protocol.RunInfo{RunID: runID, AutomationID: def.ID, Depth: depth},
		execCtx:  models.NewExecutionContext(runID, def.ID, trigger.Outputs),
		logger: e.logger.With(
			"automation_id", def.ID,
			"run_id", runID,
			"trigger_type", trigger.Type,
		),
		state: models.RunStatePending,
	}

	return r.execute(ctx), nil
}

type flow int

const (
	proceed flow = iota
	halt
)

// run is the state of one automation run. It is owned by a single goroutine.
type run struct {
	executor *Executor
	def      *models.AutomationDefinition
	trigger  models.TriggerEvent
	info     protocol.RunInfo
	execCtx  *models.ExecutionContext
	logger   *slog.Logger

	state    models.RunState
	steps    []models.StepResult
	degraded bool
	err      error
}

func (r *run) execute(ctx context.Context) *models.AutomationResults {
	started := time.Now().UTC()

	ctx, span := otelhelper.StartSpan(ctx, r.executor.tracer, "automation.run",
		attribute.String(otelhelper.AutomationIDKey, r.def.ID),
		attribute.String(otelhelper.AutomationNameKey, r.def.Name),
		attribute.String(otelhelper.TriggerTypeKey, string(r.trigger.Type)),
		attribute.String(otelhelper.RunIDKey, r.info.RunID),
		attribute.Int(otelhelper.DepthKey, r.info.Depth),
	)
	defer span.End()

	ctx = steplog.WithLogger(ctx, r.logger)

	metrics.RecordRunStart()
	r.publish(ctx, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, r.def.ID),
		RunID:       r.info.RunID,
		TriggerType: string(r.trigger.Type),
		TriggerData: r.trigger.Outputs,
		Depth:       r.info.Depth,
	})

	r.state = models.RunStateRunning
	r.logger.Info("Automation run started", "steps", len(r.def.Steps), "depth", r.info.Depth)

	r.sequence(ctx, r.def.Steps)

	if r.state == models.RunStateRunning {
		r.state = models.RunStateSucceeded
		if r.degraded {
			r.state = models.RunStatePartiallyFailed
		}
	}

	results := &models.AutomationResults{
		RunID:        r.info.RunID,
		AutomationID: r.def.ID,
		Status:       r.state.Status(),
		Steps:        r.steps,
		StartedAt:    started,
		FinishedAt:   time.Now().UTC(),
	}

	if results.Steps == nil {
		results.Steps = []models.StepResult{}
	}

	if r.err != nil {
		results.Error = r.err.Error()
		otelhelper.SetError(span, r.err)
	}

	duration := results.FinishedAt.Sub(started)

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(results.Status)))
	metrics.RecordRunComplete(string(results.Status), duration)

	r.publish(ctx, events.RunFinished{
		BaseEvent:     events.NewBaseEvent(events.RunFinishedEvent, r.def.ID),
		RunID:         r.info.RunID,
		Status:        string(results.Status),
		DurationMs:    duration.Milliseconds(),
		StepsExecuted: len(results.Steps),
		Error:         results.Error,
	})

	r.logger.Info("Automation run finished",
		"status", results.Status,
		"steps", len(results.Steps),
		"duration", duration,
	)

	return results
}

// sequence runs steps in order until one of them halts the run.
func (r *run) sequence(ctx context.Context, steps []models.Step) flow {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			r.abort(fmt.Errorf("%w: %w", ErrRunCancelled, context.Cause(ctx)))

			return halt
		}

		if r.step(ctx, &steps[i]) == halt {
			return halt
		}
	}

	return proceed
}

func (r *run) step(ctx context.Context, step *models.Step) flow {
	ctx, span := otelhelper.StartSpan(ctx, r.executor.tracer, "automation.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
		attribute.String(otelhelper.StepKindKey, step.Kind()),
	)
	defer span.End()

	recorded := len(r.steps)

	var next flow

	switch step.Type {
	case models.StepTypeAction:
		next = r.action(ctx, step)
	case models.StepTypeBranch:
		next = r.branch(ctx, step)
	case models.StepTypeLoop:
		next = r.loop(ctx, step)
	default:
		r.abort(fmt.Errorf("step %s: %w %q", step.ID, models.ErrUnknownStepType, step.Type))

		return halt
	}

	if recorded < len(r.steps) {
		result := r.steps[recorded]
		span.SetAttributes(attribute.String(otelhelper.StepStatusKey, string(result.Status)))

		if result.Err != nil {
			otelhelper.SetError(span, result.Err)
		}
	}

	return next
}

func (r *run) action(ctx context.Context, step *models.Step) flow {
	kind := step.Action.Kind

	inputs, err := template.ResolveInputs(step.Action.Inputs, step.Action.Required, r.execCtx)
	if err != nil {
		return r.fail(step, models.NewFailureResult(step.ID, kind,
			&registry.StepExecutionError{StepID: step.ID, Kind: kind, Err: err}))
	}

	outcome, err := r.executor.dispatcher.Execute(r.stepContext(ctx, step), registry.Call{
		StepID:   step.ID,
		Kind:     kind,
		Inputs:   inputs,
		Snapshot: r.execCtx.Snapshot(),
		Logger:   r.logger.With("step_id", step.ID, "kind", kind),
	})
	if err != nil {
		return r.fail(step, models.NewFailureResult(step.ID, kind, err))
	}

	if r.succeed(step, models.NewSuccessResult(step.ID, kind, outcome.Outputs)) == halt {
		return halt
	}

	if outcome.Halt {
		r.logger.Info("Step ended the run", "step_id", step.ID, "kind", kind)

		return halt
	}

	return proceed
}

// branch selects the first matching case and runs its children inline, right
// after the branch's own result.
func (r *run) branch(ctx context.Context, step *models.Step) flow {
	spec := step.Branch

	selected, ok, err := conditional.SelectBranch(spec.Branches, r.execCtx)
	if err != nil {
		return r.fail(step, models.NewFailureResult(step.ID, step.Kind(),
			&registry.StepExecutionError{StepID: step.ID, Kind: step.Kind(), Err: err}))
	}

	if ok {
		outputs := map[string]any{
			"branchId":   selected.ID,
			"branchName": selected.Name,
			"matched":    true,
		}

		if r.succeed(step, models.NewSuccessResult(step.ID, step.Kind(), outputs)) == halt {
			return halt
		}

		r.logger.Debug("Branch matched", "step_id", step.ID, "branch_id", selected.ID)

		return r.sequence(ctx, spec.Children[selected.ID])
	}

	policy := spec.OnNoMatch
	if policy == models.NoMatchDefault {
		policy = r.executor.config.NoMatchPolicy
	}

	if policy == models.NoMatchFail {
		cases := make([]string, 0, len(spec.Branches))
		for _, branchCase := range spec.Branches {
			cases = append(cases, branchCase.ID)
		}

		return r.fail(step, models.NewFailureResult(step.ID, step.Kind(),
			&conditional.BranchNoMatchError{StepID: step.ID, Cases: cases}))
	}

	outputs := map[string]any{
		"branchId":   "",
		"branchName": "",
		"matched":    false,
		"status":     "no_condition_met",
	}

	if r.succeed(step, models.NewSuccessResult(step.ID, step.Kind(), outputs)) == halt {
		return halt
	}

	if policy == models.NoMatchSkip {
		return proceed
	}

	r.logger.Info("No branch matched, ending run", "step_id", step.ID)

	return halt
}

func (r *run) loop(ctx context.Context, step *models.Step) flow {
	result := r.executor.loops.Run(r.stepContext(ctx, step), step, r.execCtx)
	r.record(result)

	// A loop that iterated exposes its outputs even when it failed part way.
	if result.Iterations != nil {
		if err := r.execCtx.Set(step.ID, result.Outputs); err != nil {
			r.abort(err)

			return halt
		}
	}

	switch {
	case result.Status == models.StatusSuccess:
		return proceed
	case result.Status == models.StatusPartial, loop.IsBoundError(result.Err):
		r.degraded = true

		return proceed
	case errors.Is(result.Err, loop.ErrCancelled):
		r.abort(fmt.Errorf("%w: %w", ErrRunCancelled, result.Err))

		return halt
	}

	return r.blocking(step, result)
}

func (r *run) stepContext(ctx context.Context, step *models.Step) context.Context {
	info := r.info
	info.StepID = step.ID

	return protocol.WithRun(ctx, info)
}

// succeed records a successful result and merges its outputs into the context.
func (r *run) succeed(step *models.Step, result models.StepResult) flow {
	r.record(result)

	if err := r.execCtx.Set(step.ID, result.Outputs); err != nil {
		r.abort(err)

		return halt
	}

	return proceed
}

// fail records a failed result and applies the step's blocking flag.
func (r *run) fail(step *models.Step, result models.StepResult) flow {
	r.record(result)

	return r.blocking(step, result)
}

func (r *run) blocking(step *models.Step, result models.StepResult) flow {
	if step.IsBlocking() {
		r.abort(result.Err)

		return halt
	}

	r.degraded = true

	return proceed
}

func (r *run) record(result models.StepResult) {
	r.steps = append(r.steps, result)
	metrics.RecordStep(result.Kind, string(result.Status))

	if result.Success {
		r.logger.Debug("Step finished", "step_id", result.StepID, "kind", result.Kind, "status", result.Status)

		return
	}

	r.logger.Warn("Step failed", "step_id", result.StepID, "kind", result.Kind, "status", result.Status, "error", result.Error)
}

func (r *run) abort(err error) {
	r.state = models.RunStateFailed
	r.err = err
}

func (r *run) publish(ctx context.Context, event eventbus.Event) {
	if r.executor.publisher == nil {
		return
	}

	if err := r.executor.publisher.Publish(ctx, r.def.ID, event); err != nil {
		r.logger.Warn("Failed to publish run event", "type", event.GetType(), "error", err)
	}
}

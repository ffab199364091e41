// Package trigger turns external events into automation runs: row store
// changes and trigger requests arriving on the event bus, and cron schedules.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
)

var ErrUnexpectedEvent = errors.New("unexpected event payload")

// Runner finds and runs stored automations. workflow.Service implements it.
type Runner interface {
	Matching(ctx context.Context, triggerType models.TriggerType, tableID string) ([]*models.AutomationDefinition, error)
	Execute(ctx context.Context, automationID string, trigger models.TriggerEvent) (*models.AutomationResults, error)
}

// Dispatcher runs the automations matching each event it receives. Runs of
// one event execute concurrently and independently.
type Dispatcher struct {
	runner Runner
	logger *slog.Logger
}

func NewDispatcher(runner Runner, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		runner: runner,
		logger: logger.With("module", "trigger_dispatcher"),
	}
}

// Register subscribes the dispatcher to row events and trigger requests.
func (d *Dispatcher) Register(subscriber eventbus.EventSubscriber) error {
	for _, eventType := range []events.EventType{
		events.RowCreatedEvent,
		events.RowUpdatedEvent,
		events.RowDeletedEvent,
	} {
		if err := subscriber.Handle(eventType, d.HandleRowChanged); err != nil {
			return fmt.Errorf("failed to handle %s: %w", eventType, err)
		}
	}

	if err := subscriber.Handle(events.AutomationTriggeredEvent, d.HandleAutomationTriggered); err != nil {
		return fmt.Errorf("failed to handle %s: %w", events.AutomationTriggeredEvent, err)
	}

	return nil
}

// HandleRowChanged runs every automation watching the event's table.
func (d *Dispatcher) HandleRowChanged(ctx context.Context, event any) error {
	changed, ok := asRowChanged(event)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	triggerType, outputs := RowTrigger(changed)

	_, err := d.Fire(ctx, triggerType, changed.TableID, outputs)

	return err
}

// HandleAutomationTriggered runs the single automation named by the event.
func (d *Dispatcher) HandleAutomationTriggered(ctx context.Context, event any) error {
	var triggered events.AutomationTriggered

	switch e := event.(type) {
	case *events.AutomationTriggered:
		triggered = *e
	case events.AutomationTriggered:
		triggered = e
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	trigger := models.TriggerEvent{
		Type:    models.TriggerType(triggered.TriggerType),
		Outputs: Outputs(models.TriggerType(triggered.TriggerType), triggered.TriggerData),
	}

	metrics.RecordTrigger(triggered.TriggerType)

	results, err := d.runner.Execute(ctx, triggered.AutomationID, trigger)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to run triggered automation",
			"automation_id", triggered.AutomationID, "error", err)

		return nil
	}

	d.logResults(ctx, results)

	return nil
}

// Fire runs every stored automation started by triggerType (and watching
// tableID, for row triggers) and waits for all of them. Only a failure to list
// automations is returned; run failures live in the results.
func (d *Dispatcher) Fire(
	ctx context.Context,
	triggerType models.TriggerType,
	tableID string,
	outputs map[string]any,
) ([]*models.AutomationResults, error) {
	defs, err := d.runner.Matching(ctx, triggerType, tableID)
	if err != nil {
		return nil, err
	}

	if len(defs) == 0 {
		d.logger.DebugContext(ctx, "No automation matches trigger", "trigger_type", triggerType, "table_id", tableID)

		return nil, nil
	}

	metrics.RecordTrigger(string(triggerType))

	trigger := models.TriggerEvent{Type: triggerType, Outputs: Outputs(triggerType, outputs)}
	all := make([]*models.AutomationResults, len(defs))

	var wg sync.WaitGroup

	for i, def := range defs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results, err := d.runner.Execute(ctx, def.ID, trigger)
			if err != nil {
				d.logger.ErrorContext(ctx, "Failed to run automation", "automation_id", def.ID, "error", err)

				return
			}

			d.logResults(ctx, results)
			all[i] = results
		}()
	}

	wg.Wait()

	return compact(all), nil
}

func (d *Dispatcher) logResults(ctx context.Context, results *models.AutomationResults) {
	level := slog.LevelInfo
	if results.Status != models.StatusSuccess {
		level = slog.LevelWarn
	}

	d.logger.Log(ctx, level, "Automation finished",
		"automation_id", results.AutomationID,
		"run_id", results.RunID,
		"status", results.Status,
		"error", results.Error,
	)
}

func asRowChanged(event any) (events.RowChanged, bool) {
	switch e := event.(type) {
	case *events.RowChanged:
		return *e, true
	case events.RowChanged:
		return e, true
	}

	return events.RowChanged{}, false
}

func compact(all []*models.AutomationResults) []*models.AutomationResults {
	out := all[:0]

	for _, results := range all {
		if results != nil {
			out = append(out, results)
		}
	}

	return out
}

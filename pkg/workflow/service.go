package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

// Store is the read side of automation persistence.
type Store interface {
	Automations(ctx context.Context) ([]*models.AutomationDefinition, error)
	AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error)
}

// Service loads stored automations and runs them through an Executor.
type Service struct {
	store    Store
	executor *Executor
	logger   *slog.Logger
}

func NewService(store Store, executor *Executor, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		executor: executor,
		logger:   logger.With("module", "workflow_service"),
	}
}

// Execute loads the automation and runs it for trigger.
func (s *Service) Execute(ctx context.Context, automationID string, trigger models.TriggerEvent) (*models.AutomationResults, error) {
	def, err := s.store.AutomationByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automation %s: %w", automationID, err)
	}

	return s.executor.Run(ctx, def, trigger)
}

// RunSubAutomation runs an automation on behalf of a step of another run. The
// child gets an APP trigger carrying inputs as its fields. A non-positive
// timeout falls back to the configured sub-automation timeout.
//
// The caller waits at most timeout. A child still running then is abandoned
// with a cancelled ctx and ErrSubAutomationTimeout is returned.
func (s *Service) RunSubAutomation(
	ctx context.Context,
	automationID string,
	inputs map[string]any,
	timeout time.Duration,
) (*models.AutomationResults, error) {
	if timeout <= 0 {
		timeout = s.executor.config.SubAutomationTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("Running sub-automation", "automation_id", automationID, "timeout", timeout)

	type outcome struct {
		results *models.AutomationResults
		err     error
	}

	done := make(chan outcome, 1)

	go func() {
		results, err := s.Execute(ctx, automationID, models.TriggerEvent{
			Type:    models.TriggerTypeApp,
			Outputs: map[string]any{"fields": inputs},
		})
		done <- outcome{results: results, err: err}
	}()

	select {
	case out := <-done:
		return out.results, out.err
	case <-ctx.Done():
		s.logger.Warn("Sub-automation did not finish in time", "automation_id", automationID, "timeout", timeout)

		return nil, fmt.Errorf("%w: automation %s after %s: %w", ErrSubAutomationTimeout, automationID, timeout, ctx.Err())
	}
}

// Validate loads the automation and checks it against the registered kinds.
func (s *Service) Validate(ctx context.Context, automationID string) error {
	def, err := s.store.AutomationByID(ctx, automationID)
	if err != nil {
		return err
	}

	return ValidateDefinition(def, s.executor.dispatcher)
}

// Matching returns the stored automations started by triggerType. For row
// triggers only automations watching tableID match.
func (s *Service) Matching(ctx context.Context, triggerType models.TriggerType, tableID string) ([]*models.AutomationDefinition, error) {
	all, err := s.store.Automations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch automations: %w", err)
	}

	matching := make([]*models.AutomationDefinition, 0, len(all))

	for _, def := range all {
		if def.Trigger.Type != triggerType {
			continue
		}

		if triggerType.IsRowEvent() && def.Trigger.TableID() != tableID {
			continue
		}

		matching = append(matching, def)
	}

	return matching, nil
}

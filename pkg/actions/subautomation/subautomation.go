// Package subautomation provides the triggerAutomation step kind, which runs
// another stored automation and waits for its result.
package subautomation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "triggerAutomation"

var ErrChildFailed = errors.New("sub-automation failed")

// Runner runs a stored automation on behalf of a step. A non-positive
// timeout means the runner's default.
type Runner interface {
	RunSubAutomation(ctx context.Context, automationID string, inputs map[string]any, timeout time.Duration) (*models.AutomationResults, error)
}

type ActionFactory struct {
	runner Runner
}

func NewActionFactory(runner Runner) *ActionFactory {
	return &ActionFactory{runner: runner}
}

func (*ActionFactory) ID() string              { return Kind }
func (*ActionFactory) Name() string            { return "Trigger Automation" }
func (*ActionFactory) Group() models.KindGroup { return models.KindGroupExternal }

func (*ActionFactory) Description() string {
	return "Runs another automation with the given fields and returns its step results."
}

func (f *ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(f.runner, inputs)
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"automation": {
				Type:        "object",
				Description: "automationId selects the automation; every other field is passed as a trigger field.",
				Required:    []string{"automationId"},
			},
			"timeout": {Description: "Timeout in seconds; empty uses the configured default."},
		},
		Required: []string{"automation"},
	}
}

type Action struct {
	runner       Runner
	AutomationID string
	Fields       map[string]any
	Timeout      time.Duration
}

func NewAction(runner Runner, inputs map[string]any) (*Action, error) {
	automation, err := actions.Map(inputs, "automation")
	if err != nil {
		return nil, err
	}

	id, err := actions.RequiredString(automation, "automationId")
	if err != nil {
		return nil, err
	}

	seconds, err := actions.Int(inputs, "timeout", 0)
	if err != nil {
		return nil, err
	}

	fields := maps.Clone(automation)
	delete(fields, "automationId")

	return &Action{
		runner:       runner,
		AutomationID: id,
		Fields:       fields,
		Timeout:      time.Duration(seconds) * time.Second,
	}, nil
}

// Execute runs the child. A child that ends in failure fails the step; a
// partial child still succeeds with status partial.
func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("%s: no automation runner configured", Kind)
	}

	results, err := a.runner.RunSubAutomation(ctx, a.AutomationID, a.Fields, a.Timeout)
	if err != nil {
		return nil, fmt.Errorf("automation %s: %w", a.AutomationID, err)
	}

	logger.DebugContext(ctx, "Sub-automation finished", "automation_id", a.AutomationID,
		"run_id", results.RunID, "status", results.Status)

	if results.Status == models.StatusFailure {
		reason := results.Error
		if reason == "" {
			if failed := results.Failed(); len(failed) > 0 {
				reason = failed[0].Error
			}
		}

		return nil, fmt.Errorf("%w: %s: %s", ErrChildFailed, a.AutomationID, reason)
	}

	steps := make([]any, 0, len(results.Steps))
	for _, step := range results.Steps {
		steps = append(steps, map[string]any{
			"stepId":  step.StepID,
			"success": step.Success,
			"outputs": step.Outputs,
		})
	}

	return map[string]any{
		"status":  string(results.Status),
		"runId":   results.RunID,
		"value":   steps,
		"success": true,
	}, nil
}

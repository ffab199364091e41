// Package testutil provides test data builders for automation definitions.
package testutil

import (
	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/models"
)

// CreateTestDefinition creates an APP-triggered definition with default values
// that can be overridden.
func CreateTestDefinition(overrides ...func(*models.AutomationDefinition)) *models.AutomationDefinition {
	def := &models.AutomationDefinition{
		ID:      uuid.New().String(),
		Name:    "Test Automation",
		Trigger: models.Trigger{Type: models.TriggerTypeApp},
		Steps:   []models.Step{},
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// WithSteps sets the top-level steps.
func WithSteps(steps ...models.Step) func(*models.AutomationDefinition) {
	return func(d *models.AutomationDefinition) {
		d.Steps = steps
	}
}

// WithTrigger sets the trigger.
func WithTrigger(triggerType models.TriggerType, inputs map[string]any) func(*models.AutomationDefinition) {
	return func(d *models.AutomationDefinition) {
		d.Trigger = models.Trigger{Type: triggerType, Inputs: inputs}
	}
}

// Action builds an ACTION step.
func Action(id, kind string, inputs map[string]any, overrides ...func(*models.Step)) models.Step {
	step := models.Step{
		ID:     id,
		Type:   models.StepTypeAction,
		Action: &models.ActionStep{Kind: kind, Inputs: inputs},
	}

	return apply(step, overrides)
}

// Case builds a branch case.
func Case(id string, condition models.Condition) models.BranchCase {
	return models.BranchCase{ID: id, Name: id, Condition: condition}
}

// Branch builds a BRANCH step.
func Branch(id string, cases []models.BranchCase, children map[string][]models.Step, overrides ...func(*models.Step)) models.Step {
	if children == nil {
		children = map[string][]models.Step{}
	}

	for _, branchCase := range cases {
		if _, ok := children[branchCase.ID]; !ok {
			children[branchCase.ID] = []models.Step{}
		}
	}

	step := models.Step{
		ID:     id,
		Type:   models.StepTypeBranch,
		Branch: &models.BranchStep{Branches: cases, Children: children},
	}

	return apply(step, overrides)
}

// CollectionLoop builds a COLLECTION loop step wrapping body.
func CollectionLoop(id string, binding any, body models.Step, overrides ...func(*models.Step)) models.Step {
	step := models.Step{
		ID:   id,
		Type: models.StepTypeLoop,
		Loop: &models.LoopStep{
			Mode:          models.LoopModeCollection,
			Binding:       binding,
			FailurePolicy: models.FailurePolicyStop,
			Step:          &body,
		},
	}

	return apply(step, overrides)
}

// CountLoop builds a FIXED_COUNT loop step wrapping body.
func CountLoop(id string, count int, body models.Step, overrides ...func(*models.Step)) models.Step {
	step := models.Step{
		ID:   id,
		Type: models.StepTypeLoop,
		Loop: &models.LoopStep{
			Mode:          models.LoopModeFixedCount,
			Iterations:    &count,
			FailurePolicy: models.FailurePolicyStop,
			Step:          &body,
		},
	}

	return apply(step, overrides)
}

// NonBlocking lets the run continue past a failure of the step.
func NonBlocking() func(*models.Step) {
	return func(s *models.Step) {
		blocking := false
		s.Blocking = &blocking
	}
}

// WithRequired marks action inputs whose bindings must resolve.
func WithRequired(names ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.Action.Required = names
	}
}

// WithNoMatch sets the no-match policy of a branch step.
func WithNoMatch(policy models.NoMatchPolicy) func(*models.Step) {
	return func(s *models.Step) {
		s.Branch.OnNoMatch = policy
	}
}

// WithIterations caps a loop step.
func WithIterations(n int) func(*models.Step) {
	return func(s *models.Step) {
		s.Loop.Iterations = &n
	}
}

// WithFailurePolicy sets the failure policy of a loop step.
func WithFailurePolicy(policy models.FailurePolicy) func(*models.Step) {
	return func(s *models.Step) {
		s.Loop.FailurePolicy = policy
	}
}

// WithStopValue ends a loop at the first item equal to value.
func WithStopValue(value any) func(*models.Step) {
	return func(s *models.Step) {
		s.Loop.StopValue = value
	}
}

func apply(step models.Step, overrides []func(*models.Step)) models.Step {
	for _, override := range overrides {
		override(&step)
	}

	return step
}

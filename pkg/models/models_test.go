package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requiredTag = "required"

const definitionJSON = `{
  "id": "auto-1",
  "name": "Notify on new order",
  "trigger": {"type": "ROW_CREATED", "inputs": {"tableId": "orders"}},
  "steps": [
    {"id": "step1", "type": "ACTION", "kind": "queryRows", "inputs": {"tableId": "orders"}, "required": ["tableId"]},
    {"id": "check", "type": "branch", "onNoMatch": "SKIP",
     "branches": [{"id": "big", "name": "Big", "condition": {"operator": "EQUAL", "left": "{{step1.rows.length}}", "right": 1}}],
     "children": {"big": [{"id": "log", "type": "ACTION", "kind": "serverLog", "blocking": false}]}},
    {"id": "each", "type": "LOOP", "mode": "collection", "binding": "{{step1.rows}}", "iterations": 3,
     "step": {"id": "each-body", "type": "ACTION", "kind": "serverLog"}}
  ]
}`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(definitionJSON))
	require.NoError(t, err)

	assert.Equal(t, "auto-1", def.ID)
	assert.Equal(t, TriggerTypeRowCreated, def.Trigger.Type)
	assert.Equal(t, "orders", def.Trigger.TableID())
	require.Len(t, def.Steps, 3)

	action := def.Steps[0]
	assert.Equal(t, StepTypeAction, action.Type)
	require.NotNil(t, action.Action)
	assert.Equal(t, "queryRows", action.Action.Kind)
	assert.Equal(t, []string{"tableId"}, action.Action.Required)
	assert.True(t, action.IsBlocking())

	branch := def.Steps[1]
	assert.Equal(t, StepTypeBranch, branch.Type)
	require.NotNil(t, branch.Branch)
	assert.Equal(t, NoMatchSkip, branch.Branch.OnNoMatch)
	require.Len(t, branch.Branch.Branches, 1)
	assert.Equal(t, OperatorEqual, branch.Branch.Branches[0].Condition.Operator)
	require.Len(t, branch.Branch.Children["big"], 1)
	assert.False(t, branch.Branch.Children["big"][0].IsBlocking())

	loop := def.Steps[2]
	require.NotNil(t, loop.Loop)
	assert.Equal(t, LoopModeCollection, loop.Loop.Mode)
	assert.Equal(t, FailurePolicyStop, loop.Loop.FailurePolicy)
	require.NotNil(t, loop.Loop.Iterations)
	assert.Equal(t, 3, *loop.Loop.Iterations)
	require.NotNil(t, loop.Loop.Step)
	assert.Equal(t, "serverLog", loop.Loop.Step.Action.Kind)
}

func TestParseDefinition_UnknownStepType(t *testing.T) {
	_, err := ParseDefinition([]byte(`{"id":"a","trigger":{"type":"APP"},"steps":[{"id":"s","type":"PARALLEL"}]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStepType))
}

func TestParseDefinitionYAML(t *testing.T) {
	doc := `
id: auto-yaml
trigger:
  type: WEBHOOK
steps:
  - id: hook
    type: ACTION
    kind: outgoingWebhook
    inputs:
      url: https://example.com
      retries: 2
`
	def, err := ParseDefinitionYAML([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, TriggerTypeWebhook, def.Trigger.Type)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, "https://example.com", def.Steps[0].Action.Inputs["url"])
	assert.Equal(t, float64(2), def.Steps[0].Action.Inputs["retries"])
}

func TestStep_MarshalRoundTripKeepsVariant(t *testing.T) {
	def, err := ParseDefinition([]byte(definitionJSON))
	require.NoError(t, err)

	raw, err := json.Marshal(def)
	require.NoError(t, err)

	again, err := ParseDefinition(raw)
	require.NoError(t, err)
	assert.Equal(t, def, again)
}

func TestAutomationDefinition_StepByID(t *testing.T) {
	def, err := ParseDefinition([]byte(definitionJSON))
	require.NoError(t, err)

	tests := []struct {
		id    string
		found bool
	}{
		{"step1", true},
		{"log", true},
		{"each-body", true},
		{"missing", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			step, ok := def.StepByID(tt.id)
			assert.Equal(t, tt.found, ok)

			if tt.found {
				assert.Equal(t, tt.id, step.ID)
			}
		})
	}
}

func TestAutomationDefinition_Validation(t *testing.T) {
	validate := validator.New()

	err := validate.Struct(&AutomationDefinition{Trigger: Trigger{Type: TriggerTypeApp}})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "ID", validationErrors[0].Field())
	assert.Equal(t, requiredTag, validationErrors[0].Tag())

	assert.NoError(t, validate.Struct(&AutomationDefinition{ID: "x", Trigger: Trigger{Type: TriggerTypeApp}}))
}

func TestTriggerType_Valid(t *testing.T) {
	for _, triggerType := range TriggerTypes {
		assert.True(t, triggerType.Valid(), triggerType)
	}

	assert.False(t, TriggerType("EMAIL_RECEIVED").Valid())
	assert.True(t, TriggerTypeRowDeleted.IsRowEvent())
	assert.False(t, TriggerTypeCron.IsRowEvent())
}

func TestExecutionContext_AppendOnly(t *testing.T) {
	execCtx := NewExecutionContext("run-1", "auto-1", map[string]any{"row": map[string]any{"id": "r1"}})

	require.NoError(t, execCtx.Set("step1", map[string]any{"count": 1}))

	err := execCtx.Set("step1", map[string]any{"count": 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContextEntryExists))

	value, ok := execCtx.Get("step1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"count": 1}, value)

	err = execCtx.Set(TriggerContextKey, map[string]any{})
	assert.True(t, errors.Is(err, ErrContextEntryExists))
	assert.Equal(t, []string{"step1", "trigger"}, execCtx.Keys())
}

func TestExecutionContext_WrittenEntriesAreIsolated(t *testing.T) {
	execCtx := NewExecutionContext("run-1", "auto-1", nil)

	outputs := map[string]any{"rows": []any{map[string]any{"id": "r1"}}}
	require.NoError(t, execCtx.Set("query", outputs))

	outputs["rows"].([]any)[0].(map[string]any)["id"] = "mutated"

	stored, _ := execCtx.Get("query")
	assert.Equal(t, "r1", stored.(map[string]any)["rows"].([]any)[0].(map[string]any)["id"])
}

func TestExecutionContext_ForIteration(t *testing.T) {
	parent := NewExecutionContext("run-1", "auto-1", nil)
	require.NoError(t, parent.Set("step1", "value"))

	child := parent.ForIteration("item-0", 0)

	item, ok := child.Get(CurrentItemKey)
	require.True(t, ok)
	assert.Equal(t, "item-0", item)

	index, _ := child.Get(CurrentIndexKey)
	assert.Equal(t, 0, index)

	inherited, _ := child.Get("step1")
	assert.Equal(t, "value", inherited)

	_, ok = parent.Get(CurrentItemKey)
	assert.False(t, ok)
}

func TestAutomationResults_Failed(t *testing.T) {
	loop := NewSuccessResult("loop", "loop", nil)
	loop.Status = StatusPartial
	loop.Iterations = []StepResult{
		NewSuccessResult("body", "serverLog", nil),
		NewFailureResult("body", "serverLog", errors.New("boom")),
	}

	results := AutomationResults{Steps: []StepResult{NewSuccessResult("a", "serverLog", nil), loop}}

	failed := results.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)

	step, ok := results.Step("loop")
	require.True(t, ok)
	assert.Equal(t, StatusPartial, step.Status)
}

func TestRunState_Status(t *testing.T) {
	assert.Equal(t, StatusSuccess, RunStateSucceeded.Status())
	assert.Equal(t, StatusFailure, RunStateFailed.Status())
	assert.Equal(t, StatusPartial, RunStatePartiallyFailed.Status())
}

func TestSchedule(t *testing.T) {
	def := &AutomationDefinition{
		ID:      "nightly",
		Trigger: Trigger{Type: TriggerTypeCron, Inputs: map[string]any{"expression": "0 2 * * *"}},
	}

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	schedule, err := NewSchedule(def, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC), schedule.NextDueAt)
	assert.False(t, schedule.IsDue(now))
	assert.True(t, schedule.IsDue(schedule.NextDueAt))

	require.NoError(t, schedule.MarkRun(schedule.NextDueAt))
	assert.Equal(t, time.Date(2025, 1, 3, 2, 0, 0, 0, time.UTC), schedule.NextDueAt)
}

func TestSchedule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  *AutomationDefinition
	}{
		{
			name: "not cron",
			def:  &AutomationDefinition{ID: "a", Trigger: Trigger{Type: TriggerTypeApp}},
		},
		{
			name: "missing expression",
			def:  &AutomationDefinition{ID: "a", Trigger: Trigger{Type: TriggerTypeCron}},
		},
		{
			name: "bad expression",
			def: &AutomationDefinition{
				ID:      "a",
				Trigger: Trigger{Type: TriggerTypeCron, Inputs: map[string]any{"expression": "every day"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchedule(tt.def, time.Now())
			assert.True(t, errors.Is(err, ErrInvalidSchedule))
		})
	}
}

package workflow

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/stepflow/pkg/conditional"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

// KindChecker reports whether a step kind is registered.
type KindChecker interface {
	Has(kind string) bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDefinition checks def as a whole and returns a *DefinitionError
// listing every problem, or nil.
func ValidateDefinition(def *models.AutomationDefinition, kinds KindChecker) error {
	if def == nil {
		return &DefinitionError{Problems: []string{"definition is empty"}}
	}

	v := &definitionValidator{
		kinds:    kinds,
		declared: map[string]bool{},
	}

	if err := validate.Struct(def); err != nil {
		v.problemf("%v", err)
	}

	v.trigger(def.Trigger)
	v.collectIDs(def.Steps)
	v.steps(def.Steps, false)

	if len(v.problems) == 0 {
		return nil
	}

	return &DefinitionError{AutomationID: def.ID, Problems: v.problems}
}

type definitionValidator struct {
	kinds    KindChecker
	declared map[string]bool
	problems []string
}

func (v *definitionValidator) problemf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *definitionValidator) trigger(trigger models.Trigger) {
	if !trigger.Type.Valid() {
		v.problemf("unknown trigger type %q", trigger.Type)

		return
	}

	if trigger.Type == models.TriggerTypeCron {
		expression, _ := trigger.Inputs["expression"].(string)
		if _, err := models.ParseCron(expression); err != nil {
			v.problemf("trigger: %v", err)
		}
	}
}

// collectIDs records every step id and reports duplicates, nested steps included.
func (v *definitionValidator) collectIDs(steps []models.Step) {
	for i := range steps {
		step := &steps[i]

		switch {
		case step.ID == "":
			v.problemf("step %d has no id", i)
		case step.ID == models.TriggerContextKey || step.ID == models.CurrentItemKey || step.ID == models.CurrentIndexKey:
			v.problemf("step id %q is reserved", step.ID)
		case v.declared[step.ID]:
			v.problemf("duplicate step id %q", step.ID)
		default:
			v.declared[step.ID] = true
		}

		if step.Branch != nil {
			for _, caseID := range sortedKeys(step.Branch.Children) {
				v.collectIDs(step.Branch.Children[caseID])
			}
		}

		if step.Loop != nil && step.Loop.Step != nil {
			v.collectIDs([]models.Step{*step.Loop.Step})
		}
	}
}

func (v *definitionValidator) steps(steps []models.Step, inLoop bool) {
	for i := range steps {
		step := &steps[i]

		switch step.Type {
		case models.StepTypeAction:
			v.action(step, inLoop)
		case models.StepTypeBranch:
			v.branch(step, inLoop)
		case models.StepTypeLoop:
			v.loop(step)
		default:
			v.problemf("step %s: %v %q", step.ID, models.ErrUnknownStepType, step.Type)
		}
	}
}

func (v *definitionValidator) action(step *models.Step, inLoop bool) {
	if step.Action == nil {
		v.problemf("step %s: action step without kind", step.ID)

		return
	}

	if step.Action.Kind == "" {
		v.problemf("step %s: action step without kind", step.ID)
	} else if v.kinds != nil && !v.kinds.Has(step.Action.Kind) {
		v.problemf("step %s: step kind %q is not registered", step.ID, step.Action.Kind)
	}

	for _, name := range step.Action.Required {
		if _, ok := step.Action.Inputs[name]; !ok {
			v.problemf("step %s: required input %q is missing", step.ID, name)
		}
	}

	v.references(step.ID, step.Action.Inputs, inLoop)
}

func (v *definitionValidator) branch(step *models.Step, inLoop bool) {
	branch := step.Branch
	if branch == nil || len(branch.Branches) == 0 {
		v.problemf("step %s: branch step without cases", step.ID)

		return
	}

	if !branch.OnNoMatch.Valid() {
		v.problemf("step %s: unknown onNoMatch policy %q", step.ID, branch.OnNoMatch)
	}

	cases := make(map[string]bool, len(branch.Branches))

	for _, branchCase := range branch.Branches {
		if err := validate.Struct(branchCase); err != nil {
			v.problemf("step %s: %v", step.ID, err)

			continue
		}

		if cases[branchCase.ID] {
			v.problemf("step %s: duplicate branch case %q", step.ID, branchCase.ID)
		}

		cases[branchCase.ID] = true

		if err := conditional.Validate(branchCase.Condition); err != nil {
			v.problemf("step %s: case %s: %v", step.ID, branchCase.ID, err)
		}

		v.references(step.ID, operands(branchCase.Condition), inLoop)

		if _, ok := branch.Children[branchCase.ID]; !ok {
			v.problemf("step %s: branch case %q has no children entry", step.ID, branchCase.ID)
		}
	}

	for _, caseID := range sortedKeys(branch.Children) {
		if !cases[caseID] {
			v.problemf("step %s: children reference unknown branch case %q", step.ID, caseID)
		}

		v.steps(branch.Children[caseID], inLoop)
	}
}

func (v *definitionValidator) loop(step *models.Step) {
	spec := step.Loop
	if spec == nil {
		v.problemf("step %s: loop step without configuration", step.ID)

		return
	}

	switch spec.Mode {
	case models.LoopModeCollection:
		if spec.Binding == nil {
			v.problemf("step %s: COLLECTION loop needs a binding", step.ID)
		}
	case models.LoopModeFixedCount:
		if spec.Iterations == nil && spec.Binding == nil {
			v.problemf("step %s: FIXED_COUNT loop needs iterations", step.ID)
		}
	default:
		v.problemf("step %s: unknown loop mode %q", step.ID, spec.Mode)
	}

	if spec.Iterations != nil && *spec.Iterations < 0 {
		v.problemf("step %s: negative iteration count", step.ID)
	}

	if spec.FailurePolicy != models.FailurePolicyStop && spec.FailurePolicy != models.FailurePolicyContinue {
		v.problemf("step %s: unknown failure policy %q", step.ID, spec.FailurePolicy)
	}

	v.references(step.ID, spec.Binding, false)
	v.references(step.ID, spec.StopValue, false)

	if spec.Step == nil || spec.Step.Type != models.StepTypeAction {
		v.problemf("step %s: loop must wrap an action step", step.ID)

		return
	}

	v.action(spec.Step, true)
}

// references checks that every binding in tmpl names the trigger, a declared
// step or, inside a loop body, the current item or index.
func (v *definitionValidator) references(stepID string, tmpl any, inLoop bool) {
	for _, path := range template.References(tmpl) {
		source := template.SourceID(path)

		switch {
		case source == models.TriggerContextKey, v.declared[source]:
		case source == models.CurrentItemKey || source == models.CurrentIndexKey:
			if !inLoop {
				v.problemf("step %s: %q is only bound inside a loop", stepID, path)
			}
		default:
			v.problemf("step %s: binding %q references unknown source %q", stepID, path, source)
		}
	}
}

// operands flattens the compared values of a condition tree.
func operands(cond models.Condition) []any {
	values := []any{cond.Left, cond.Right}
	for _, sub := range cond.Conditions {
		values = append(values, operands(sub)...)
	}

	return values
}

func sortedKeys(children map[string][]models.Step) []string {
	keys := make([]string, 0, len(children))
	for key := range children {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

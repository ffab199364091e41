package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StepType discriminates the Step tagged union.
type StepType string

const (
	StepTypeAction StepType = "ACTION"
	StepTypeBranch StepType = "BRANCH"
	StepTypeLoop   StepType = "LOOP"
)

// NoMatchPolicy decides what a branch step does when no case matches.
type NoMatchPolicy string

const (
	NoMatchDefault NoMatchPolicy = ""
	NoMatchStop    NoMatchPolicy = "stop"
	NoMatchSkip    NoMatchPolicy = "skip"
	NoMatchFail    NoMatchPolicy = "fail"
)

// Valid reports whether p is a known policy. The empty policy defers to the engine default.
func (p NoMatchPolicy) Valid() bool {
	switch p {
	case NoMatchDefault, NoMatchStop, NoMatchSkip, NoMatchFail:
		return true
	}

	return false
}

// LoopMode selects the iteration source of a loop.
type LoopMode string

const (
	LoopModeCollection LoopMode = "COLLECTION"
	LoopModeFixedCount LoopMode = "FIXED_COUNT"
)

// FailurePolicy decides whether a failing iteration halts the loop.
type FailurePolicy string

const (
	FailurePolicyStop     FailurePolicy = "STOP"
	FailurePolicyContinue FailurePolicy = "CONTINUE"
)

var ErrUnknownStepType = errors.New("unknown step type")

// Step is a tagged union: exactly one of Action, Branch or Loop is set,
// matching Type.
type Step struct {
	ID       string
	Name     string
	Type     StepType
	Blocking *bool

	Action *ActionStep
	Branch *BranchStep
	Loop   *LoopStep
}

// ActionStep is a leaf operation dispatched through the step registry.
type ActionStep struct {
	Kind     string
	Inputs   map[string]any
	Required []string
}

// BranchCase is one labelled alternative of a branch step.
type BranchCase struct {
	ID        string    `json:"id"        validate:"required"`
	Name      string    `json:"name"`
	Condition Condition `json:"condition"`
}

// BranchStep selects at most one child sequence by evaluating its cases in order.
type BranchStep struct {
	Branches  []BranchCase
	Children  map[string][]Step
	OnNoMatch NoMatchPolicy
}

// LoopStep repeats a wrapped action step over a collection or a fixed count.
type LoopStep struct {
	Mode          LoopMode
	Binding       any
	Iterations    *int
	FailurePolicy FailurePolicy
	StopValue     any
	Step          *Step
}

// IsBlocking reports whether a failure of this step aborts the run. Steps are
// blocking unless they opt out.
func (s *Step) IsBlocking() bool {
	return s.Blocking == nil || *s.Blocking
}

// Kind returns the registry kind for action steps and the lower-cased step type otherwise.
func (s *Step) Kind() string {
	if s.Type == StepTypeAction && s.Action != nil {
		return s.Action.Kind
	}

	return strings.ToLower(string(s.Type))
}

type stepJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Type     StepType `json:"type"`
	Blocking *bool    `json:"blocking,omitempty"`

	Kind     string         `json:"kind,omitempty"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Required []string       `json:"required,omitempty"`

	Branches  []BranchCase      `json:"branches,omitempty"`
	Children  map[string][]Step `json:"children,omitempty"`
	OnNoMatch NoMatchPolicy     `json:"onNoMatch,omitempty"`

	Mode          LoopMode      `json:"mode,omitempty"`
	Binding       any           `json:"binding,omitempty"`
	Iterations    *int          `json:"iterations,omitempty"`
	FailurePolicy FailurePolicy `json:"failurePolicy,omitempty"`
	StopValue     any           `json:"stopValue,omitempty"`
	Step          *Step         `json:"step,omitempty"`
}

// UnmarshalJSON decodes the flat wire form into the matching variant.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Step{
		ID:       raw.ID,
		Name:     raw.Name,
		Type:     StepType(strings.ToUpper(string(raw.Type))),
		Blocking: raw.Blocking,
	}

	switch s.Type {
	case StepTypeAction:
		s.Action = &ActionStep{
			Kind:     raw.Kind,
			Inputs:   raw.Inputs,
			Required: raw.Required,
		}
	case StepTypeBranch:
		s.Branch = &BranchStep{
			Branches:  raw.Branches,
			Children:  raw.Children,
			OnNoMatch: NoMatchPolicy(strings.ToLower(string(raw.OnNoMatch))),
		}
	case StepTypeLoop:
		policy := FailurePolicy(strings.ToUpper(string(raw.FailurePolicy)))
		if policy == "" {
			policy = FailurePolicyStop
		}

		s.Loop = &LoopStep{
			Mode:          LoopMode(strings.ToUpper(string(raw.Mode))),
			Binding:       raw.Binding,
			Iterations:    raw.Iterations,
			FailurePolicy: policy,
			StopValue:     raw.StopValue,
			Step:          raw.Step,
		}
	default:
		return fmt.Errorf("step %q: %w %q", raw.ID, ErrUnknownStepType, raw.Type)
	}

	return nil
}

// MarshalJSON encodes the step in its flat wire form.
func (s Step) MarshalJSON() ([]byte, error) {
	raw := stepJSON{
		ID:       s.ID,
		Name:     s.Name,
		Type:     s.Type,
		Blocking: s.Blocking,
	}

	switch {
	case s.Action != nil:
		raw.Kind = s.Action.Kind
		raw.Inputs = s.Action.Inputs
		raw.Required = s.Action.Required
	case s.Branch != nil:
		raw.Branches = s.Branch.Branches
		raw.Children = s.Branch.Children
		raw.OnNoMatch = s.Branch.OnNoMatch
	case s.Loop != nil:
		raw.Mode = s.Loop.Mode
		raw.Binding = s.Loop.Binding
		raw.Iterations = s.Loop.Iterations
		raw.FailurePolicy = s.Loop.FailurePolicy
		raw.StopValue = s.Loop.StopValue
		raw.Step = s.Loop.Step
	}

	return json.Marshal(raw)
}

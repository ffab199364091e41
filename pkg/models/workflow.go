// Package models defines the core domain models for trigger-driven step automations.
package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AutomationDefinition is a stored workflow: one trigger plus an ordered step sequence.
// It is read-only for the duration of a run.
type AutomationDefinition struct {
	ID      string  `json:"id"             validate:"required"`
	Name    string  `json:"name,omitempty"`
	Trigger Trigger `json:"trigger"`
	Steps   []Step  `json:"steps"`
}

// ParseDefinition decodes a JSON automation definition.
func ParseDefinition(data []byte) (*AutomationDefinition, error) {
	var def AutomationDefinition

	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode automation definition: %w", err)
	}

	return &def, nil
}

// MarshalDefinition encodes a definition in its JSON wire form.
func MarshalDefinition(def *AutomationDefinition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode automation definition: %w", err)
	}

	return data, nil
}

// ParseDefinitionYAML decodes a YAML automation definition. The document is
// converted to JSON first so both encodings share the same step decoding rules.
func ParseDefinitionYAML(data []byte) (*AutomationDefinition, error) {
	var doc any

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode automation definition: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert automation definition: %w", err)
	}

	return ParseDefinition(raw)
}

// StepByID walks the definition, including branch children and loop bodies,
// and returns the step with the given id.
func (d *AutomationDefinition) StepByID(id string) (*Step, bool) {
	return findStep(d.Steps, id)
}

func findStep(steps []Step, id string) (*Step, bool) {
	for i := range steps {
		step := &steps[i]
		if step.ID == id {
			return step, true
		}

		switch {
		case step.Branch != nil:
			for _, children := range step.Branch.Children {
				if found, ok := findStep(children, id); ok {
					return found, true
				}
			}
		case step.Loop != nil && step.Loop.Step != nil:
			if step.Loop.Step.ID == id {
				return step.Loop.Step, true
			}
		}
	}

	return nil, false
}

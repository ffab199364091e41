package models

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

const (
	CurrentItemKey  = "currentItem"
	CurrentIndexKey = "currentIndex"
)

var ErrContextEntryExists = errors.New("context entry already written")

// ExecutionContext is the append-only, per-run mapping from step id (and the
// reserved trigger and loop keys) to resolved output values. A run owns its
// context exclusively, so it carries no locking.
type ExecutionContext struct {
	ID           string
	AutomationID string

	values map[string]any
}

// NewExecutionContext seeds a fresh context with the trigger outputs.
func NewExecutionContext(id, automationID string, triggerOutputs map[string]any) *ExecutionContext {
	if triggerOutputs == nil {
		triggerOutputs = map[string]any{}
	}

	return &ExecutionContext{
		ID:           id,
		AutomationID: automationID,
		values: map[string]any{
			TriggerContextKey: cloneValue(triggerOutputs),
		},
	}
}

// Set records the output of a completed step. Entries are written once.
func (c *ExecutionContext) Set(key string, value any) error {
	if _, exists := c.values[key]; exists {
		return fmt.Errorf("%w: %s", ErrContextEntryExists, key)
	}

	c.values[key] = cloneValue(value)

	return nil
}

// Get returns the entry stored under key.
func (c *ExecutionContext) Get(key string) (any, bool) {
	value, ok := c.values[key]

	return value, ok
}

// Snapshot returns a copy of the current entries for handing across the
// step registry boundary.
func (c *ExecutionContext) Snapshot() map[string]any {
	return maps.Clone(c.values)
}

// Keys returns the entry keys in sorted order.
func (c *ExecutionContext) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// ForIteration derives the context of one loop iteration: a copy of c plus
// currentItem and currentIndex. The parent is left untouched.
func (c *ExecutionContext) ForIteration(item any, index int) *ExecutionContext {
	values := maps.Clone(c.values)
	values[CurrentItemKey] = cloneValue(item)
	values[CurrentIndexKey] = index

	return &ExecutionContext{
		ID:           c.ID,
		AutomationID: c.AutomationID,
		values:       values,
	}
}

// cloneValue deep-copies the JSON-like containers so later mutation by a
// producer cannot leak into a written entry.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}

		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

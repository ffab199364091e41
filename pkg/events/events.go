// Package events defines the messages exchanged on the event bus: automation
// run lifecycle notifications, row changes and trigger requests.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every stepflow event.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent  EventType = "automation.run.started"
	RunFinishedEvent EventType = "automation.run.finished"

	// AutomationTriggeredEvent asks a dispatcher to run one automation.
	AutomationTriggeredEvent EventType = "automation.triggered"

	// Row store events.
	RowCreatedEvent EventType = "row.created"
	RowUpdatedEvent EventType = "row.updated"
	RowDeletedEvent EventType = "row.deleted"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	AutomationID string         `json:"automation_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, automationID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		AutomationID: automationID,
		Metadata:     make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	RunID       string         `json:"run_id"`
	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Depth       int            `json:"depth"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	StepsExecuted int    `json:"steps_executed"`
	Error         string `json:"error,omitempty"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

// AutomationTriggered requests a run of AutomationID with the given trigger outputs.
type AutomationTriggered struct {
	BaseEvent

	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data"`
}

func (e AutomationTriggered) GetType() EventType {
	return AutomationTriggeredEvent
}

// RowChanged reports a write to the row store. Type tells which write it was.
type RowChanged struct {
	BaseEvent

	TableID  string         `json:"table_id"`
	RowID    string         `json:"row_id"`
	Revision int64          `json:"revision"`
	Row      map[string]any `json:"row"`
	OldRow   map[string]any `json:"old_row,omitempty"`
}

func (e RowChanged) GetType() EventType {
	return e.Type
}

// NewRowChanged builds a row event of the given type.
func NewRowChanged(eventType EventType, tableID, rowID string, revision int64, row, oldRow map[string]any) RowChanged {
	return RowChanged{
		BaseEvent: NewBaseEvent(eventType, ""),
		TableID:   tableID,
		RowID:     rowID,
		Revision:  revision,
		Row:       row,
		OldRow:    oldRow,
	}
}

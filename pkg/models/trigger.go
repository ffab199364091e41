package models

// TriggerType identifies the external event that starts a run.
type TriggerType string

const (
	TriggerTypeCron       TriggerType = "CRON"
	TriggerTypeRowCreated TriggerType = "ROW_CREATED"
	TriggerTypeRowUpdated TriggerType = "ROW_UPDATED"
	TriggerTypeRowDeleted TriggerType = "ROW_DELETED"
	TriggerTypeWebhook    TriggerType = "WEBHOOK"
	TriggerTypeApp        TriggerType = "APP"
	TriggerTypeRowAction  TriggerType = "ROW_ACTION"
)

// TriggerContextKey is the reserved context key holding the trigger outputs.
const TriggerContextKey = "trigger"

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{
	TriggerTypeCron,
	TriggerTypeRowCreated,
	TriggerTypeRowUpdated,
	TriggerTypeRowDeleted,
	TriggerTypeWebhook,
	TriggerTypeApp,
	TriggerTypeRowAction,
}

// Valid reports whether t is one of the supported trigger types.
func (t TriggerType) Valid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}

	return false
}

// IsRowEvent reports whether the trigger fires on row store changes.
func (t TriggerType) IsRowEvent() bool {
	return t == TriggerTypeRowCreated || t == TriggerTypeRowUpdated || t == TriggerTypeRowDeleted
}

// Trigger is the trigger declared by an automation. Inputs hold its
// configuration (cron expression, table id, ...).
type Trigger struct {
	Type   TriggerType    `json:"type"             validate:"required"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// TableID returns the table the trigger is bound to, if any.
func (t Trigger) TableID() string {
	tableID, _ := t.Inputs["tableId"].(string)

	return tableID
}

// TriggerEvent is what an external dispatcher hands to the engine when a
// trigger fires. Outputs seed the run context under TriggerContextKey.
type TriggerEvent struct {
	Type    TriggerType    `json:"type"`
	Outputs map[string]any `json:"inputs,omitempty"`
}

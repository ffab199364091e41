package web

import "github.com/dukex/stepflow/pkg/models"

// TriggerRequest is the body of POST /automations/:id/trigger. Type defaults
// to APP; with Async the run is queued on the event bus instead of awaited.
type TriggerRequest struct {
	Type   models.TriggerType `json:"type"   validate:"omitempty,oneof=CRON ROW_CREATED ROW_UPDATED ROW_DELETED WEBHOOK APP ROW_ACTION"`
	Inputs map[string]any     `json:"inputs"`
	Async  bool               `json:"async"`
}

// ListAutomationsResponse is returned by GET /automations.
type ListAutomationsResponse struct {
	Automations []*models.AutomationDefinition `json:"automations"`
	TotalCount  int                            `json:"total_count"`
}

// ValidationResponse is returned by POST /automations/:id/validate.
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// QueuedResponse is returned when a run was queued rather than awaited.
type QueuedResponse struct {
	AutomationID string `json:"automation_id"`
	EventID      string `json:"event_id"`
}

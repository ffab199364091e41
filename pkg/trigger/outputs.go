package trigger

import (
	"maps"
	"time"

	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
)

// RowTrigger maps a row store event onto its trigger type and outputs:
// created {row,id,revision}, updated {row,id,revision,oldRow}, deleted {row}.
func RowTrigger(event events.RowChanged) (models.TriggerType, map[string]any) {
	switch event.Type {
	case events.RowUpdatedEvent:
		return models.TriggerTypeRowUpdated, map[string]any{
			"row":      event.Row,
			"id":       event.RowID,
			"revision": event.Revision,
			"oldRow":   event.OldRow,
		}
	case events.RowDeletedEvent:
		return models.TriggerTypeRowDeleted, map[string]any{"row": event.Row}
	default:
		return models.TriggerTypeRowCreated, map[string]any{
			"row":      event.Row,
			"id":       event.RowID,
			"revision": event.Revision,
		}
	}
}

// Outputs normalizes the data a trigger fired with into the outputs the run
// sees under the trigger key. Cron firings get a timestamp when they carry
// none and app triggers always expose their data under "fields".
func Outputs(triggerType models.TriggerType, data map[string]any) map[string]any {
	out := maps.Clone(data)
	if out == nil {
		out = map[string]any{}
	}

	switch triggerType {
	case models.TriggerTypeCron:
		if _, ok := out["timestamp"]; !ok {
			out["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		}
	case models.TriggerTypeApp:
		if _, ok := out["fields"]; !ok {
			out = map[string]any{"fields": out}
		}
	}

	return out
}

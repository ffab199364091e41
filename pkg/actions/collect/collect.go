// Package collect provides the collect step kind, which gathers a bound
// collection into a single output.
package collect

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "collect"

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string          { return Kind }
func (*ActionFactory) Name() string        { return "Collect" }
func (*ActionFactory) Description() string { return "Collects a list of values, such as the items of a loop." }

func (*ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return &Action{Collection: items(inputs["collection"])}, nil
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"collection": {Description: "A list, a JSON array string or a comma separated string."},
		},
		Required: []string{"collection"},
	}
}

type Action struct {
	Collection []any
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger.DebugContext(ctx, "Collected values", "count", len(a.Collection))

	return map[string]any{"value": a.Collection, "count": len(a.Collection), "success": true}, nil
}

// items normalises the collection input. A single value becomes a
// one-item list; nil becomes empty.
func items(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case string:
		var list []any
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			return list
		}

		out := []any{}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}

		return out
	default:
		return []any{v}
	}
}

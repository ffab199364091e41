// Package log provides the serverLog step kind.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/protocol"
)

// Action writes Text to the step logger at Level.
type Action struct {
	Text  string
	Level slog.Level
}

func NewAction(inputs map[string]any) (*Action, error) {
	level, err := parseLevel(actions.String(inputs, "level"))
	if err != nil {
		return nil, err
	}

	return &Action{Text: actions.String(inputs, "text"), Level: level}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// Execute logs the message prefixed with the automation id.
func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", Kind)

	message := a.Text
	if run, ok := protocol.RunFromContext(ctx); ok && run.AutomationID != "" {
		message = run.AutomationID + " - " + a.Text
	}

	logger.Log(ctx, a.Level, message)

	return map[string]any{"message": message, "success": true}, nil
}

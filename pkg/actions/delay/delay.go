// Package delay provides the delay step kind.
package delay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

const Kind = "delay"

// MaxDelay caps a single delay step.
const MaxDelay = time.Hour

var ErrInvalidDelay = errors.New("invalid delay")

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string          { return Kind }
func (*ActionFactory) Name() string        { return "Delay" }
func (*ActionFactory) Description() string { return "Pauses the automation for a number of milliseconds." }

func (*ActionFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewAction(inputs)
}

func (*ActionFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"time": {Description: "Delay in milliseconds."},
		},
		Required: []string{"time"},
	}
}

type Action struct {
	Duration time.Duration
}

func NewAction(inputs map[string]any) (*Action, error) {
	ms, err := actions.Int(inputs, "time", 0)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(ms) * time.Millisecond
	if duration < 0 || duration > MaxDelay {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDelay, duration)
	}

	return &Action{Duration: duration}, nil
}

func (a *Action) Execute(ctx context.Context, _ map[string]any, logger *slog.Logger) (map[string]any, error) {
	logger.DebugContext(ctx, "Delaying", "duration", a.Duration)

	timer := time.NewTimer(a.Duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return map[string]any{"success": true}, nil
}

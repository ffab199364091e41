package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/registry"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFactory is a step kind driven by a function. Its outputs are whatever
// run returns; when halt is set the built action also implements Halter.
type stubFactory struct {
	id   string
	run  func(ctx context.Context, inputs map[string]any) (map[string]any, error)
	halt func(outputs map[string]any) bool
}

func (f *stubFactory) Create(inputs map[string]any) (protocol.Action, error) {
	action := &stubAction{factory: f, inputs: inputs}
	if f.halt != nil {
		return &haltingAction{stubAction: action}, nil
	}

	return action, nil
}

func (f *stubFactory) ID() string                 { return f.id }
func (f *stubFactory) Name() string               { return f.id }
func (f *stubFactory) Description() string        { return "test kind " + f.id }
func (f *stubFactory) Schema() *models.JSONSchema { return nil }

type stubAction struct {
	factory *stubFactory
	inputs  map[string]any
}

func (a *stubAction) Execute(ctx context.Context, _ map[string]any, _ *slog.Logger) (map[string]any, error) {
	return a.factory.run(ctx, a.inputs)
}

type haltingAction struct {
	*stubAction
}

func (a *haltingAction) Halt(outputs map[string]any) bool {
	return a.factory.halt(outputs)
}

// callLog records the step kinds invoked, in order.
type callLog struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (l *callLog) add(inputs map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, inputs)
}

func (l *callLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.calls)
}

// newTestRegistry registers:
//   - echo: returns its inputs
//   - fail: always fails
//   - flaky: fails when inputs.index equals inputs.failAt
//   - gate: halts the run when inputs.pass is false
func newTestRegistry(log *callLog) *registry.Registry {
	reg := registry.NewRegistry(discardLogger())

	reg.RegisterAction(&stubFactory{id: "echo", run: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		log.add(inputs)

		return inputs, nil
	}})

	reg.RegisterAction(&stubFactory{id: "fail", run: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		log.add(inputs)

		return nil, errBoom
	}})

	reg.RegisterAction(&stubFactory{id: "flaky", run: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		log.add(inputs)

		if inputs["index"] == inputs["failAt"] {
			return nil, errBoom
		}

		return inputs, nil
	}})

	reg.RegisterAction(&stubFactory{
		id: "gate",
		run: func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			log.add(inputs)

			return map[string]any{"result": inputs["pass"]}, nil
		},
		halt: func(outputs map[string]any) bool {
			return outputs["result"] == false
		},
	})

	return reg
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

// memoryStore is a Store over a fixed set of definitions.
type memoryStore map[string]*models.AutomationDefinition

func (s memoryStore) Automations(context.Context) ([]*models.AutomationDefinition, error) {
	all := make([]*models.AutomationDefinition, 0, len(s))
	for _, def := range s {
		all = append(all, def)
	}

	return all, nil
}

func (s memoryStore) AutomationByID(_ context.Context, id string) (*models.AutomationDefinition, error) {
	def, ok := s[id]
	if !ok {
		return nil, errors.New("automation not found")
	}

	return def, nil
}

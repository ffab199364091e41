// Package registry is the capability table of step kinds.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// Gate answers whether a step kind may run. Licensing and quota decisions
// live behind it, outside the engine.
type Gate interface {
	Permitted(ctx context.Context, kind string) (bool, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, kind string) (bool, error)

func (f GateFunc) Permitted(ctx context.Context, kind string) (bool, error) {
	return f(ctx, kind)
}

// Call is one dispatch through the registry.
type Call struct {
	StepID   string
	Kind     string
	Inputs   map[string]any
	Snapshot map[string]any
	Logger   *slog.Logger
}

// Outcome is what a step kind produced.
type Outcome struct {
	Outputs map[string]any

	// Halt asks the coordinator to end the run after this step.
	Halt bool
}

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
	gate            Gate
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

// SetGate installs the permission hook consulted before every dispatch.
func (r *Registry) SetGate(gate Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gate = gate
}

func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](r.logger, pluginsPath, "Action")
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actionFactories[kind]

	return ok
}

// Kinds describes every registered kind, sorted by id.
func (r *Registry) Kinds() []models.RegisteredKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.RegisteredKind, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		kinds = append(kinds, describe(factory))
	}

	slices.SortFunc(kinds, func(a, b models.RegisteredKind) int {
		return strings.Compare(a.ID, b.ID)
	})

	return kinds
}

func describe(factory protocol.ActionFactory) models.RegisteredKind {
	group := models.KindGroupData
	if grouped, ok := factory.(protocol.Grouped); ok {
		group = grouped.Group()
	}

	return models.RegisteredKind{
		ID:          factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Group:       group,
		Schema:      factory.Schema(),
	}
}

// CreateAction validates inputs against the kind's schema and builds the action.
func (r *Registry) CreateAction(actionType string, inputs map[string]any) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKindNotRegistered, actionType)
	}

	if err := validateInputs(factory.Schema(), inputs); err != nil {
		return nil, err
	}

	action, err := factory.Create(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInputs, err)
	}

	return action, nil
}

// Execute dispatches a resolved call. Every failure comes back as a
// *StepExecutionError.
func (r *Registry) Execute(ctx context.Context, call Call) (Outcome, error) {
	logger := call.Logger
	if logger == nil {
		logger = r.logger
	}

	if err := r.permitted(ctx, call.Kind); err != nil {
		return Outcome{}, &StepExecutionError{StepID: call.StepID, Kind: call.Kind, Err: err}
	}

	action, err := r.CreateAction(call.Kind, call.Inputs)
	if err != nil {
		return Outcome{}, &StepExecutionError{StepID: call.StepID, Kind: call.Kind, Err: err, Validation: true}
	}

	outputs, err := run(ctx, action, call.Snapshot, logger)
	if err != nil {
		return Outcome{}, &StepExecutionError{StepID: call.StepID, Kind: call.Kind, Err: err}
	}

	if outputs == nil {
		outputs = map[string]any{}
	}

	outcome := Outcome{Outputs: outputs}
	if halter, ok := action.(protocol.Halter); ok {
		outcome.Halt = halter.Halt(outputs)
	}

	return outcome, nil
}

// run executes action, turning a panic inside it into an error.
func run(ctx context.Context, action protocol.Action, snapshot map[string]any, logger *slog.Logger) (outputs map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "Action panicked", "panic", p, "stack", string(debug.Stack()))
			outputs, err = nil, fmt.Errorf("%w: %v", ErrActionPanicked, p)
		}
	}()

	return action.Execute(ctx, snapshot, logger)
}

func (r *Registry) permitted(ctx context.Context, kind string) error {
	r.mu.RLock()
	gate := r.gate
	r.mu.RUnlock()

	if gate == nil {
		return nil
	}

	ok, err := gate.Permitted(ctx, kind)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}

	if !ok {
		return fmt.Errorf("%w: %q", ErrKindNotPermitted, kind)
	}

	return nil
}

func validateInputs(schema *models.JSONSchema, inputs map[string]any) error {
	if schema == nil {
		return nil
	}

	if inputs == nil {
		inputs = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(inputs))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInputs, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidInputs, strings.Join(messages, "; "))
	}

	return nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))
	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("lookup %s in plugin %s: %w", symbolName, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/ai"
	"github.com/dukex/stepflow/pkg/datasource"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/mail"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/workflow"
)

// Options collects the command line configuration of an engine.
type Options struct {
	DatabaseURL string
	RowsURL     string
	PluginsPath string
	QueriesPath string

	// EventBus is empty when the engine runs without one (one-shot commands).
	EventBus     string
	KafkaBrokers string

	AI   ai.Config
	SMTP mail.SMTPConfig

	Tracing bool
	Engine  workflow.Config
}

// Engine is a fully wired automation engine.
type Engine struct {
	Persistence persistence.Persistence
	Rows        rows.Store
	Bus         eventbus.EventBus
	Registry    *registry.Registry
	Executor    *workflow.Executor
	Service     *workflow.Service

	closers []func(ctx context.Context) error
	logger  *slog.Logger
}

// NewEngine opens every configured collaborator and wires the engine. On
// error whatever was already opened is closed.
func NewEngine(ctx context.Context, logger *slog.Logger, opts Options) (*Engine, error) {
	engine := &Engine{logger: logger}

	if err := engine.open(ctx, opts); err != nil {
		engine.Close(ctx)

		return nil, err
	}

	return engine, nil
}

func (e *Engine) open(ctx context.Context, opts Options) error {
	var err error

	e.Persistence, err = NewPersistence(ctx, e.logger, opts.DatabaseURL)
	if err != nil {
		return err
	}

	e.closers = append(e.closers, e.Persistence.Close)

	store, closeRows, err := NewRowStore(ctx, e.logger, opts.RowsURL)
	if err != nil {
		return err
	}

	e.closers = append(e.closers, func(context.Context) error { return closeRows() })
	e.Rows = store

	if opts.EventBus != "" {
		e.Bus, err = NewEventBus(opts.EventBus, opts.KafkaBrokers, e.logger)
		if err != nil {
			return err
		}

		e.closers = append(e.closers, func(context.Context) error { return e.Bus.Close() })
		e.Rows = rows.NewPublishingStore(store, e.Bus, e.logger)
	}

	collaborators := Collaborators{Rows: e.Rows}

	if opts.QueriesPath != "" {
		catalog, err := datasource.Load(e.logger, opts.QueriesPath)
		if err != nil {
			return err
		}

		e.closers = append(e.closers, func(context.Context) error { return catalog.Close() })
		collaborators.Queries = catalog
	}

	if opts.AI.APIKey != "" || opts.AI.BaseURL != "" {
		collaborators.AI = ai.NewOpenAIProvider(opts.AI)
	}

	if opts.SMTP.Addr != "" {
		collaborators.Mailer = mail.NewSMTPMailer(opts.SMTP)
	}

	e.Registry, err = NewRegistry(e.logger, opts.PluginsPath, collaborators)
	if err != nil {
		return err
	}

	var executorOptions []workflow.Option

	if opts.Tracing {
		shutdown, err := otelhelper.Setup(ctx, serviceName)
		if err != nil {
			return err
		}

		e.closers = append(e.closers, shutdown)
		executorOptions = append(executorOptions, workflow.WithTracer(otelhelper.Tracer()))
	}

	if e.Bus != nil {
		executorOptions = append(executorOptions, workflow.WithPublisher(e.Bus))
	}

	e.Executor = workflow.NewExecutor(e.Registry, opts.Engine, e.logger, executorOptions...)
	e.Service = workflow.NewService(e.Persistence, e.Executor, e.logger)

	RegisterSubAutomation(e.Registry, e.Service)

	return nil
}

// Run executes def directly, without looking it up in the store.
func (e *Engine) Run(ctx context.Context, def *models.AutomationDefinition, trigger models.TriggerEvent) (*models.AutomationResults, error) {
	return e.Executor.Run(ctx, def, trigger)
}

// Close releases collaborators in reverse order of opening.
func (e *Engine) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close engine", "error", err)
	}
}

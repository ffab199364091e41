package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/trigger"
	"github.com/dukex/stepflow/pkg/web"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Serve the HTTP API and fire row, cron and queued triggers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP port of the API",
				Value:   3000,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus transport (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, options := setup(command, "stepflow-serve")
			options.EventBus = command.String("event-bus")
			options.KafkaBrokers = command.String("kafka-brokers")

			engine, err := cmd.NewEngine(ctx, logger, options)
			if err != nil {
				logger.Error("Failed to start engine", "error", err)

				return err
			}
			defer engine.Close(ctx)

			dispatcher := trigger.NewDispatcher(engine.Service, logger)
			if err := dispatcher.Register(engine.Bus); err != nil {
				logger.Error("Failed to register trigger handlers", "error", err)

				return err
			}

			if err := engine.Bus.Subscribe(ctx); err != nil {
				logger.Error("Failed to subscribe to events", "error", err)

				return err
			}

			scheduler := trigger.NewScheduler(engine.Service, logger)
			if err := scheduler.Start(ctx); err != nil {
				logger.Error("Failed to start scheduler", "error", err)

				return err
			}
			defer scheduler.Stop()

			handlers := web.NewAPIHandlers(
				engine.Persistence,
				engine.Service,
				engine.Registry,
				engine.Rows,
				engine.Bus,
				validator.New(validator.WithRequiredStructEnabled()),
			)
			handlers.OnChange(func(ctx context.Context) {
				if err := scheduler.Sync(ctx); err != nil {
					logger.Error("Failed to sync schedules", "error", err)
				}
			})

			return web.NewServer(handlers, logger).Start(ctx, command.Int("port"))
		},
	}
}

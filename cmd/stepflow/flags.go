package main

import (
	"log/slog"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/ai"
	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/loop"
	"github.com/dukex/stepflow/pkg/mail"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
)

// commonFlags are shared by every subcommand through the root command.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Automation store: a directory (optionally file://) or a postgres:// URL",
			Value:   "file://./automations",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "rows-url",
			Usage:   "Row store: memory://, redis:// or postgres://",
			Value:   "memory://",
			Sources: cli.EnvVars("ROWS_URL"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing action plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "queries",
			Usage:   "YAML catalog of named SQL queries for executeQuery",
			Sources: cli.EnvVars("QUERIES_PATH"),
		},
		&cli.IntFlag{
			Name:    "max-loop-iterations",
			Usage:   "Maximum iterations of a single loop step",
			Value:   loop.DefaultMaxIterations,
			Sources: cli.EnvVars("AUTOMATION_MAX_ITERATIONS"),
		},
		&cli.DurationFlag{
			Name:    "run-timeout",
			Usage:   "Maximum duration of a run (0 disables it)",
			Sources: cli.EnvVars("AUTOMATION_RUN_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "sub-automation-timeout",
			Usage:   "Default timeout of triggerAutomation steps",
			Value:   60 * time.Second,
			Sources: cli.EnvVars("AUTOMATION_SUB_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-nesting",
			Usage:   "Maximum depth of sub-automation chains (0 disables sub-automations)",
			Value:   5,
			Sources: cli.EnvVars("AUTOMATION_MAX_NESTING"),
		},
		&cli.StringFlag{
			Name:    "no-match-policy",
			Usage:   "What a branch without a matching case does (stop, skip, fail)",
			Value:   string(models.NoMatchStop),
			Sources: cli.EnvVars("AUTOMATION_NO_MATCH_POLICY"),
		},
		&cli.StringFlag{
			Name:    "ai-endpoint",
			Usage:   "Base URL of an OpenAI compatible API",
			Sources: cli.EnvVars("AI_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:    "ai-api-key",
			Usage:   "API key for the AI endpoint",
			Sources: cli.EnvVars("AI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "ai-model",
			Usage:   "Default model of AI steps",
			Value:   "gpt-4o-mini",
			Sources: cli.EnvVars("AI_MODEL"),
		},
		&cli.StringFlag{
			Name:    "smtp-addr",
			Usage:   "SMTP relay host:port for sendSmtpEmail",
			Sources: cli.EnvVars("SMTP_ADDR"),
		},
		&cli.StringFlag{
			Name:    "smtp-user",
			Usage:   "SMTP username",
			Sources: cli.EnvVars("SMTP_USER"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Default sender address",
			Sources: cli.EnvVars("SMTP_FROM"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// setup installs the logger and reads the engine options.
func setup(command *cli.Command, module string) (*slog.Logger, cmd.Options) {
	log.Setup(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule(module)

	options := cmd.Options{
		DatabaseURL: command.String("database-url"),
		RowsURL:     command.String("rows-url"),
		PluginsPath: command.String("plugins-path"),
		QueriesPath: command.String("queries"),
		AI: ai.Config{
			BaseURL: command.String("ai-endpoint"),
			APIKey:  command.String("ai-api-key"),
			Model:   command.String("ai-model"),
		},
		SMTP: mail.SMTPConfig{
			Addr:     command.String("smtp-addr"),
			Username: command.String("smtp-user"),
			Password: command.String("smtp-password"),
			From:     command.String("smtp-from"),
		},
		Tracing: command.Bool("otel"),
		Engine: workflow.Config{
			MaxLoopIterations:    command.Int("max-loop-iterations"),
			RunTimeout:           command.Duration("run-timeout"),
			SubAutomationTimeout: command.Duration("sub-automation-timeout"),
			MaxNesting:           command.Int("max-nesting"),
			NoMatchPolicy:        models.NoMatchPolicy(command.String("no-match-policy")),
		},
	}

	return logger, options
}

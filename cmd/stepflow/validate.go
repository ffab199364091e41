package main

import (
	"context"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/workflow"
)

var errInvalidDefinitions = errors.New("some definitions are invalid")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate definition files, or every stored automation when none are given",
		ArgsUsage: "[definition files...]",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger, options := setup(command, "stepflow-validate")

			engine, err := cmd.NewEngine(ctx, logger, options)
			if err != nil {
				logger.Error("Failed to start engine", "error", err)

				return err
			}
			defer engine.Close(ctx)

			var definitions []*models.AutomationDefinition

			if command.Args().Len() == 0 {
				definitions, err = engine.Persistence.Automations(ctx)
				if err != nil {
					return fmt.Errorf("failed to fetch automations: %w", err)
				}
			}

			for _, path := range command.Args().Slice() {
				def, err := readDefinition(path)
				if err != nil {
					logger.Error("Failed to read definition", "path", path, "error", err)

					return err
				}

				definitions = append(definitions, def)
			}

			logger.Info("Validating automations", "automations", len(definitions))

			invalid := 0

			for _, def := range definitions {
				if err := workflow.ValidateDefinition(def, engine.Registry); err != nil {
					invalid++

					logger.Error("Invalid automation", "automation_id", def.ID, "error", err)

					continue
				}

				logger.Info("Automation is valid", "automation_id", def.ID)
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidDefinitions, invalid, len(definitions))
			}

			return nil
		},
	}
}

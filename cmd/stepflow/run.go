package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/trigger"
	"github.com/dukex/stepflow/pkg/workflow"
)

var errRunFailed = errors.New("automation run did not succeed")

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Run an automation definition once and print its results",
		ArgsUsage: "<definition.json|definition.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "trigger-type",
				Usage: "Trigger type of the run (defaults to the definition's trigger)",
			},
			&cli.StringFlag{
				Name:  "inputs",
				Usage: "Trigger outputs as a JSON object",
				Value: "{}",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger, options := setup(command, "stepflow-run")

			path := command.Args().First()
			if path == "" {
				return errors.New("a definition file is required")
			}

			def, err := readDefinition(path)
			if err != nil {
				logger.Error("Failed to read definition", "path", path, "error", err)

				return err
			}

			var data map[string]any
			if err := json.Unmarshal([]byte(command.String("inputs")), &data); err != nil {
				return fmt.Errorf("invalid --inputs: %w", err)
			}

			triggerType := def.Trigger.Type
			if t := command.String("trigger-type"); t != "" {
				triggerType = models.TriggerType(t)
			}

			engine, err := cmd.NewEngine(ctx, logger, options)
			if err != nil {
				logger.Error("Failed to start engine", "error", err)

				return err
			}
			defer engine.Close(ctx)

			if err := workflow.ValidateDefinition(def, engine.Registry); err != nil {
				logger.Error("Invalid definition", "error", err)

				return err
			}

			results, err := engine.Run(ctx, def, models.TriggerEvent{
				Type:    triggerType,
				Outputs: trigger.Outputs(triggerType, data),
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			if err := encoder.Encode(results); err != nil {
				return err
			}

			if results.Status != models.StatusSuccess {
				return errRunFailed
			}

			return nil
		},
	}
}

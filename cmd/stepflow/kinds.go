package main

import (
	"context"
	"encoding/json"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
)

func NewKindsCommand() *cli.Command {
	return &cli.Command{
		Name:  "kinds",
		Usage: "List the registered step kinds as JSON",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger, options := setup(command, "stepflow-kinds")

			engine, err := cmd.NewEngine(ctx, logger, options)
			if err != nil {
				logger.Error("Failed to start engine", "error", err)

				return err
			}
			defer engine.Close(ctx)

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(engine.Registry.Kinds())
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "stepflow",
		Usage:                 "Run, validate and serve automations",
		EnableShellCompletion: true,
		Flags:                 commonFlags(),
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewKindsCommand(),
			NewServeCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "stepflow:", err)
		os.Exit(1)
	}
}

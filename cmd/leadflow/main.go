// Package main provides the leadflow server binary.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/leadflow/leadflow/pkg/log"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		log.WithModule("leadflow").Error("leadflow exited with error", "error", err)
		os.Exit(1)
	}
}

// run executes the command line with GOMAXPROCS set for the container quota
// and restores it before returning.
func run(ctx context.Context, args []string) error {
	logger := log.WithModule("leadflow")

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		logger.Warn("Failed to set GOMAXPROCS", "error", err)
	}
	defer undo()

	cmd := &cli.Command{
		Name:                  "leadflow",
		Usage:                 "Run lead nurturing workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			ValidateCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

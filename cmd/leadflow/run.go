package main

import (
	"context"
	"fmt"

	"github.com/leadflow/leadflow/pkg/config"
	"github.com/leadflow/leadflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			Sources: cli.EnvVars("LEADFLOW_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   config.DefaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL: postgres://... or a file root",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "workflows",
			Usage:   "Workflow definition file or directory loaded at startup",
			Sources: cli.EnvVars("LEADFLOW_WORKFLOWS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export spans over OTLP/HTTP",
			Sources: cli.EnvVars("LEADFLOW_TRACING"),
		},
	}
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(command *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	if command.IsSet("database-url") {
		cfg.DatabaseURL = command.String("database-url")
	}

	if command.IsSet("event-bus") {
		cfg.EventBus = command.String("event-bus")
	}

	if command.IsSet("workflows") {
		cfg.Engine.WorkflowsPath = command.String("workflows")
	}

	if command.IsSet("log-level") {
		cfg.Log.Level = command.String("log-level")
	}

	if command.IsSet("tracing") {
		cfg.Tracing.Enabled = command.Bool("tracing")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the API, the workflow engine and the scheduler",
		Flags:   configFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.Log.Level, cfg.Log.Format)

			logger := log.WithModule("leadflow")
			logger.InfoContext(ctx, "Initializing leadflow", "port", cfg.Port, "event_bus", cfg.EventBus)

			server, err := NewServer(ctx, logger, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			return server.Run(ctx)
		},
	}
}

// ValidateCommand checks the configuration and the workflow definitions
// without starting anything.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the configuration and workflow definitions",
		Flags: configFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.Log.Level, cfg.Log.Format)

			count, err := validateWorkflows(ctx, cfg.Engine.WorkflowsPath)
			if err != nil {
				return err
			}

			log.WithModule("leadflow").InfoContext(ctx, "Configuration is valid", "workflows", count)

			return nil
		},
	}
}

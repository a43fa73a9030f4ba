package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "flowpilot",
		Usage:                 "Build, validate and run browser automations",
		Version:               version,
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Commands: []*cli.Command{
			newRunCommand(),
			newValidateCommand(),
			newListCommand(),
			newShowCommand(),
			newDeleteCommand(),
			newImportCommand(),
			newGraphCommand(),
			newEdgeCommand(),
			newNodeCommand(),
			newCredentialsCommand(),
			newSettingsCommand(),
			newServeCommand(),
			newMCPCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Directory holding automation JSON files",
			Sources: cli.EnvVars("FLOWPILOT_DATA_DIR"),
		},
		&cli.StringFlag{
			Name:    "db-path",
			Usage:   "Database for run history and credentials",
			Sources: cli.EnvVars("FLOWPILOT_DB_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("FLOWPILOT_LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Keep recent log records in memory and log at debug level",
			Sources: cli.EnvVars("FLOWPILOT_DEBUG"),
		},
		&cli.StringFlag{
			Name:    "download-path",
			Usage:   "Default directory for screenshots",
			Sources: cli.EnvVars("FLOWPILOT_DOWNLOAD_PATH"),
		},
		&cli.BoolFlag{
			Name:    "headless",
			Usage:   "Run the browser without a window",
			Value:   true,
			Sources: cli.EnvVars("FLOWPILOT_HEADLESS"),
		},
		&cli.DurationFlag{
			Name:    "driver-timeout",
			Usage:   "Timeout for each browser operation and API call",
			Sources: cli.EnvVars("FLOWPILOT_DRIVER_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("FLOWPILOT_TRACING"),
		},
	}
}

// withRuntime loads config, builds the runtime and closes it after fn.
func withRuntime(fn func(ctx context.Context, cmd *cli.Command, rt *runtime) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))
		return fn(ctx, cmd, rt)
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/rendis/flowpilot/internal/api"
	"github.com/rendis/flowpilot/internal/logging"
	flowmcp "github.com/rendis/flowpilot/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen-addr",
				Aliases: []string{"l"},
				Usage:   "TCP listen address",
				Sources: cli.EnvVars("FLOWPILOT_LISTEN_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "access-logs",
				Usage:   "Log every HTTP request",
				Sources: cli.EnvVars("FLOWPILOT_ACCESS_LOGS"),
			},
		},
		Action: withRuntime(func(ctx context.Context, cmd *cli.Command, rt *runtime) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(api.Config{
				Service:    rt.svc,
				Debug:      rt.debug,
				Logger:     rt.logger,
				AccessLogs: cmd.Bool("access-logs"),
			})
			app := srv.App()

			errCh := make(chan error, 1)
			go func() {
				rt.logger.InfoContext(ctx, "http api listening", logging.CategoryKey, "api", "addr", rt.cfg.ListenAddr)
				errCh <- srv.Listen(app, rt.cfg.ListenAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			rt.logger.Info("shutting down http api", logging.CategoryKey, "api")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}),
	}
}

func newMCPCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		Action: withRuntime(func(ctx context.Context, _ *cli.Command, rt *runtime) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := flowmcp.NewServer(flowmcp.ServerDeps{
				Service: rt.svc,
				Logger:  rt.logger,
				Version: version,
			})
			rt.logger.InfoContext(ctx, "mcp server on stdio", logging.CategoryKey, "mcp")
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}),
	}
}

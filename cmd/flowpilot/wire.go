package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/flowpilot/internal/browser"
	"github.com/rendis/flowpilot/internal/engine"
	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/service"
	"github.com/rendis/flowpilot/internal/steps"
	"github.com/rendis/flowpilot/internal/store"
	"github.com/rendis/flowpilot/internal/streaming"
	"github.com/rendis/flowpilot/internal/telemetry"
	"github.com/rendis/flowpilot/internal/validation"
)

// runtime is everything a command needs, built once from Config.
type runtime struct {
	cfg      Config
	logger   *slog.Logger
	debug    *logging.DebugSink
	docs     *store.FileStore
	db       *store.LibSQLStore
	svc      *service.Automations
	shutdown telemetry.ShutdownFunc
}

func newRuntime(ctx context.Context, cfg Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	var extra []slog.Handler
	if cfg.Debug {
		rt.debug = logging.NewDebugSink(logging.DefaultDebugCapacity, slog.LevelDebug)
		extra = append(extra, rt.debug)
	}
	rt.logger = logging.Setup(os.Stderr, cfg.LogLevel, extra...)

	tracer, shutdown, err := telemetry.Setup(ctx, "flowpilot", cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	rt.shutdown = shutdown

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	rt.db = db
	rt.docs = store.NewFileStore(cfg.DataDir)

	library := steps.NewLibrary()
	validator, err := validation.NewAutomationValidator(library.Registry(), service.CredentialIndex{Store: db})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build validator: %w", err)
	}

	hub := streaming.NewMemoryHub()
	exec := rt.executor(library, tracer, hub)
	rt.svc = service.New(service.Deps{
		Docs:        rt.docs,
		Runs:        db,
		Credentials: db,
		Runner:      engine.NewRunner(exec, rt.docs, db, rt.logger),
		Validator:   validator,
		Events:      hub,
		Logger:      rt.logger,
	})

	rt.logger.DebugContext(ctx, "runtime ready",
		logging.CategoryKey, "cli",
		"data_dir", cfg.DataDir,
		"db_path", cfg.DBPath,
		"headless", cfg.Headless,
	)
	return rt, nil
}

func (rt *runtime) executor(library *steps.Library, tracer trace.Tracer, hub streaming.Hub) *engine.Executor {
	launcher := browser.NewLauncher(browser.Options{
		Headless:      rt.cfg.Headless,
		Timeout:       rt.cfg.DriverTimeout,
		ScreenshotDir: rt.cfg.DownloadPath,
	})
	return engine.NewExecutor(
		engine.WithLibrary(library),
		engine.WithLauncher(launcher),
		engine.WithCredentials(rt.db),
		engine.WithHTTPClient(steps.NewHTTPClient(rt.cfg.DriverTimeout)),
		engine.WithTracer(tracer),
		engine.WithLogger(rt.logger),
		engine.WithEvents(hub),
	)
}

// Close flushes traces and closes the database.
func (rt *runtime) Close(ctx context.Context) {
	if rt.shutdown != nil {
		if err := rt.shutdown(ctx); err != nil {
			rt.logger.ErrorContext(ctx, "failed to shutdown tracer provider", "error", err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.ErrorContext(ctx, "failed to close db", "error", err)
		}
	}
}

package api

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/service"
)

// Server is the HTTP API.
type Server struct {
	handlers   *Handlers
	accessLogs bool
}

// Config holds the dependencies of a Server.
type Config struct {
	Service    *service.Automations
	Debug      *logging.DebugSink
	Logger     *slog.Logger
	AccessLogs bool
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	return &Server{
		handlers:   NewHandlers(cfg.Service, validator.New(validator.WithRequiredStructEnabled()), cfg.Debug, cfg.Logger),
		accessLogs: cfg.AccessLogs,
	}
}

// App builds the fiber application with every route mounted.
func (s *Server) App() *fiber.App {
	h := s.handlers

	app := fiber.New(fiber.Config{AppName: "flowpilot", Immutable: true})
	app.Use(recover.New())
	app.Use(cors.New())
	if s.accessLogs {
		app.Use(logger.New(logger.Config{DisableColors: true}))
	}

	app.Get("/health", h.HealthCheck)

	a := app.Group("/automations")
	a.Get("/", h.ListAutomations)
	a.Post("/", h.CreateAutomation)
	a.Post("/validate", h.ValidateAutomation)
	a.Get("/:id", h.GetAutomation)
	a.Put("/:id", h.UpdateAutomation)
	a.Delete("/:id", h.DeleteAutomation)

	a.Post("/:id/edges", h.AddEdge)
	a.Delete("/:id/edges/:edgeId", h.DeleteEdge)
	a.Delete("/:id/nodes/:nodeId", h.DeleteNode)

	a.Post("/:id/run", h.RunAutomation)
	a.Post("/:id/pause", h.PauseRun)
	a.Post("/:id/resume", h.ResumeRun)
	a.Post("/:id/stop", h.StopRun)
	a.Get("/:id/runs", h.ListRuns)
	a.Get("/:id/diagram", h.Diagram)
	a.Get("/:id/events", h.StreamEvents)

	cr := app.Group("/credentials")
	cr.Get("/", h.ListCredentials)
	cr.Put("/:id", h.PutCredential)
	cr.Delete("/:id", h.DeleteCredential)

	app.Get("/debug/logs", h.DebugLogs)
	app.Delete("/debug/logs", h.ClearDebugLogs)

	return app
}

// Listen serves on addr until the app is shut down.
func (s *Server) Listen(app *fiber.App, addr string) error {
	return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

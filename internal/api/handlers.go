// Package api serves automations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/service"
	"github.com/rendis/flowpilot/pkg/schema"
)

const (
	defaultRunsLimit = 20
	defaultLogsLimit = 200
)

// RunRequest is the optional body of POST /automations/:id/run.
type RunRequest struct {
	Variables map[string]string `json:"variables"`
	Async     bool              `json:"async"`
}

// CreateResponse wraps a stored automation with its validation warnings.
type CreateResponse struct {
	Automation *schema.Automation       `json:"automation"`
	Warnings   []schema.ValidationIssue `json:"warnings,omitempty"`
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	svc      *service.Automations
	validate *validator.Validate
	debug    *logging.DebugSink
	logger   *slog.Logger
	started  time.Time
}

// NewHandlers creates Handlers. debug may be nil, which disables /debug/logs.
func NewHandlers(svc *service.Automations, validate *validator.Validate, debug *logging.DebugSink, logger *slog.Logger) *Handlers {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, validate: validate, debug: debug, logger: logger, started: time.Now()}
}

func (h *Handlers) ListAutomations(c fiber.Ctx) error {
	list, err := h.svc.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(fiber.Map{"automations": list, "total_count": len(list)})
}

func (h *Handlers) GetAutomation(c fiber.Ctx) error {
	a, err := h.svc.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(a)
}

func (h *Handlers) CreateAutomation(c fiber.Ctx) error {
	a, res := h.svc.Validate(c.Body())
	if a == nil || !res.Valid() {
		return invalidDocument(c, res)
	}

	created, res, err := h.svc.Create(c.Context(), a)
	if err != nil {
		if res != nil && !res.Valid() {
			return invalidDocument(c, res)
		}
		return handleServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreateResponse{Automation: created, Warnings: res.Warnings})
}

func (h *Handlers) UpdateAutomation(c fiber.Ctx) error {
	a, res := h.svc.Validate(c.Body())
	if a == nil || !res.Valid() {
		return invalidDocument(c, res)
	}

	updated, res, err := h.svc.Update(c.Context(), c.Params("id"), a)
	if err != nil {
		if res != nil && !res.Valid() {
			return invalidDocument(c, res)
		}
		return handleServiceError(c, err)
	}
	return c.JSON(CreateResponse{Automation: updated, Warnings: res.Warnings})
}

func (h *Handlers) DeleteAutomation(c fiber.Ctx) error {
	if err := h.svc.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) ValidateAutomation(c fiber.Ctx) error {
	_, res := h.svc.Validate(c.Body())
	return c.JSON(fiber.Map{"valid": res.Valid(), "errors": res.Errors, "warnings": res.Warnings})
}

func (h *Handlers) AddEdge(c fiber.Ctx) error {
	var req graph.EdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	edge, err := h.svc.AddEdge(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *Handlers) DeleteEdge(c fiber.Ctx) error {
	if err := h.svc.RemoveEdge(c.Context(), c.Params("id"), c.Params("edgeId")); err != nil {
		return handleServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) DeleteNode(c fiber.Ctx) error {
	a, err := h.svc.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(a)
}

// RunAutomation runs an automation and returns its execution log. A failed
// or stopped run still answers 200; the log carries the outcome. With async
// set the run continues in the background and the call answers 202.
func (h *Handlers) RunAutomation(c fiber.Ctx) error {
	var req RunRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}
	id := c.Params("id")

	if _, err := h.svc.Get(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	if req.Async {
		go func() {
			ctx := logging.WithAutomationID(context.Background(), id)
			if _, err := h.svc.Run(ctx, id, req.Variables); err != nil {
				h.logger.WarnContext(ctx, "background run finished with error",
					logging.CategoryKey, "api", "error", err)
			}
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"automation_id": id, "status": schema.RunRunning})
	}

	log, err := h.svc.Run(c.Context(), id, req.Variables)
	if log == nil {
		return handleServiceError(c, err)
	}
	return c.JSON(log)
}

func (h *Handlers) PauseRun(c fiber.Ctx) error  { return h.control(c, h.svc.Pause, schema.RunPaused) }
func (h *Handlers) ResumeRun(c fiber.Ctx) error { return h.control(c, h.svc.Resume, schema.RunRunning) }
func (h *Handlers) StopRun(c fiber.Ctx) error   { return h.control(c, h.svc.Stop, schema.RunStopped) }

func (h *Handlers) control(c fiber.Ctx, op func(string) error, next schema.RunStatus) error {
	id := c.Params("id")
	if err := op(id); err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(fiber.Map{"automation_id": id, "status": next})
}

func (h *Handlers) ListRuns(c fiber.Ctx) error {
	limit, err := intQuery(c, "limit", defaultRunsLimit)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}
	runs, err := h.svc.Runs(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(fiber.Map{"runs": runs, "limit": limit})
}

// Diagram renders an automation. ?format=mermaid|ascii|image, ?run=true
// overlays the latest run.
func (h *Handlers) Diagram(c fiber.Ctx) error {
	format := c.Query("format", service.FormatMermaid)
	withRun, _ := strconv.ParseBool(c.Query("run", "false"))

	out, err := h.svc.Diagram(c.Context(), c.Params("id"), format, withRun)
	if err != nil {
		return handleServiceError(c, err)
	}
	if format == service.FormatImage {
		c.Set(fiber.HeaderContentType, "image/png")
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	}
	return c.Send(out)
}

// DebugLogs returns captured log entries. ?level and ?category filter,
// ?limit keeps the most recent entries.
func (h *Handlers) DebugLogs(c fiber.Ctx) error {
	if h.debug == nil {
		return handleServiceError(c, schema.NewError(schema.ErrCodeNotFound, "debug log capture is disabled"))
	}
	limit, err := intQuery(c, "limit", defaultLogsLimit)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	var entries []logging.DebugEntry
	switch {
	case c.Query("level") != "":
		entries = h.debug.ByLevel(c.Query("level"))
	case c.Query("category") != "":
		entries = h.debug.ByCategory(c.Query("category"))
	default:
		entries = h.debug.Entries()
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return c.JSON(fiber.Map{"stats": h.debug.Stats(), "entries": entries})
}

func (h *Handlers) ClearDebugLogs(c fiber.Ctx) error {
	if h.debug != nil {
		h.debug.Clear()
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	_, err := h.svc.List(c.Context())

	status, httpStatus := "healthy", fiber.StatusOK
	storage := "automation store is healthy"
	if err != nil {
		status, httpStatus = "unhealthy", fiber.StatusInternalServerError
		storage = "automation store is unhealthy: " + err.Error()
	}
	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  fiber.Map{"storage": storage},
		"uptime_s":  int(time.Since(h.started).Seconds()),
		"timestamp": time.Now().UTC(),
	})
}

func intQuery(c fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

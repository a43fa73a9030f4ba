// Package service holds the automation operations shared by the CLI, the
// HTTP API and the MCP server.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rendis/flowpilot/internal/diagram"
	"github.com/rendis/flowpilot/internal/engine"
	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/store"
	"github.com/rendis/flowpilot/internal/streaming"
	"github.com/rendis/flowpilot/internal/validation"
	"github.com/rendis/flowpilot/pkg/schema"
)

const logCategory = "service"

// Diagram formats.
const (
	FormatMermaid = "mermaid"
	FormatASCII   = "ascii"
	FormatImage   = "image"
)

// Deps holds the dependencies of an Automations service. Runs and
// Credentials may be nil.
type Deps struct {
	Docs        store.AutomationStore
	Runs        store.RunStore
	Credentials store.CredentialStore
	Runner      *engine.Runner
	Validator   validation.Validator
	Events      streaming.Hub
	Logger      *slog.Logger
}

// Automations manages stored automations and their runs.
type Automations struct {
	docs      store.AutomationStore
	runs      store.RunStore
	creds     store.CredentialStore
	runner    *engine.Runner
	validator validation.Validator
	events    streaming.Hub
	logger    *slog.Logger
}

// New creates an Automations service.
func New(deps Deps) *Automations {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Automations{
		docs:      deps.Docs,
		runs:      deps.Runs,
		creds:     deps.Credentials,
		runner:    deps.Runner,
		validator: deps.Validator,
		events:    deps.Events,
		logger:    logger,
	}
}

// List returns every stored automation.
func (s *Automations) List(ctx context.Context) ([]*schema.Automation, error) {
	return s.docs.List(ctx)
}

// Get returns automation id or a NOT_FOUND error.
func (s *Automations) Get(ctx context.Context, id string) (*schema.Automation, error) {
	a, err := s.docs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "automation %q not found", id)
	}
	return a, nil
}

// Create validates and stores a new automation.
func (s *Automations) Create(ctx context.Context, a *schema.Automation) (*schema.Automation, *schema.ValidationResult, error) {
	if a == nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "automation is nil")
	}
	if a.ID != "" {
		existing, err := s.docs.Load(ctx, a.ID)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			return nil, nil, schema.NewErrorf(schema.ErrCodeConflict, "automation %q already exists", a.ID)
		}
	}
	a.Status = schema.AutomationIdle
	a.LastRun = nil
	return s.save(ctx, a)
}

// Update replaces automation id with a, keeping its status and last run.
func (s *Automations) Update(ctx context.Context, id string, a *schema.Automation) (*schema.Automation, *schema.ValidationResult, error) {
	if a == nil {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "automation is nil")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	a.ID = id
	a.Status = current.Status
	a.LastRun = current.LastRun
	return s.save(ctx, a)
}

// Delete removes automation id and its run history.
func (s *Automations) Delete(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if s.runs != nil {
		if err := s.runs.DeleteRuns(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "delete run history", logging.CategoryKey, logCategory,
				"automation_id", id, "error", err)
		}
	}
	return nil
}

// AddEdge connects two nodes of automation id and returns the new edge.
func (s *Automations) AddEdge(ctx context.Context, id string, req graph.EdgeRequest) (*schema.Edge, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	edges, added, err := graph.Connect(a.Nodes, a.Edges, req)
	if err != nil {
		return nil, err
	}
	a.Edges = edges
	if _, _, err := s.save(ctx, a); err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveEdge deletes edge edgeID from automation id.
func (s *Automations) RemoveEdge(ctx context.Context, id, edgeID string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Edges, err = graph.RemoveEdge(a.Edges, edgeID); err != nil {
		return err
	}
	_, _, err = s.save(ctx, a)
	return err
}

// DeleteNode removes a node and its edges from automation id.
func (s *Automations) DeleteNode(ctx context.Context, id, nodeID string) (*schema.Automation, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Nodes, a.Edges, err = graph.DeleteNode(a.Nodes, a.Edges, nodeID); err != nil {
		return nil, err
	}
	saved, _, err := s.save(ctx, a)
	return saved, err
}

// Validate checks a raw automation document without storing it.
func (s *Automations) Validate(raw []byte) (*schema.Automation, *schema.ValidationResult) {
	return s.validator.ValidateDocument(raw)
}

// Run executes automation id. The log is returned even when the run fails.
func (s *Automations) Run(ctx context.Context, id string, seed map[string]string) (*schema.ExecutionLog, error) {
	if s.runner == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "runs are not enabled")
	}
	return s.runner.Run(ctx, id, seed)
}

// Pause, Resume and Stop control the active run of automation id.
func (s *Automations) Pause(id string) error  { return s.control(id, (*engine.Runner).Pause) }
func (s *Automations) Resume(id string) error { return s.control(id, (*engine.Runner).Resume) }
func (s *Automations) Stop(id string) error   { return s.control(id, (*engine.Runner).Stop) }

func (s *Automations) control(id string, op func(*engine.Runner, string) error) error {
	if s.runner == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "automation %q has no active run", id)
	}
	return op(s.runner, id)
}

// Runs returns the most recent runs of automation id, newest first.
func (s *Automations) Runs(ctx context.Context, id string, limit int) ([]*schema.ExecutionLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return []*schema.ExecutionLog{}, nil
	}
	return s.runs.ListRuns(ctx, store.RunFilter{AutomationID: id, Limit: limit})
}

// Subscribe streams the run events of automation id until cancel is called.
func (s *Automations) Subscribe(ctx context.Context, id string) (<-chan streaming.Event, func(), error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	if s.events == nil {
		return nil, nil, schema.NewError(schema.ErrCodeNotFound, "run events are not enabled")
	}
	return s.events.Subscribe(ctx, streaming.Filter{AutomationID: id})
}

// Diagram renders automation id. With withRun set, the latest run is
// overlaid on the nodes.
func (s *Automations) Diagram(ctx context.Context, id, format string, withRun bool) ([]byte, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var last *schema.ExecutionLog
	if withRun && s.runs != nil {
		logs, err := s.runs.ListRuns(ctx, store.RunFilter{AutomationID: id, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(logs) > 0 {
			last = logs[0]
		}
	}
	return Render(ctx, a, last, format)
}

// Render draws a in the given format. An empty format is Mermaid.
func Render(ctx context.Context, a *schema.Automation, log *schema.ExecutionLog, format string) ([]byte, error) {
	model, err := diagram.Build(a, log)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", FormatMermaid:
		return []byte(diagram.RenderMermaid(model)), nil
	case FormatASCII:
		return []byte(diagram.RenderASCII(model)), nil
	case FormatImage:
		return diagram.RenderImage(ctx, model)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format)
	}
}

// save normalizes and validates a, then stores it. Warnings do not block saving.
func (s *Automations) save(ctx context.Context, a *schema.Automation) (*schema.Automation, *schema.ValidationResult, error) {
	a.Normalize()
	result := s.validator.Validate(a)
	if err := result.ToError(); err != nil {
		return nil, result, err
	}
	if _, err := s.docs.Save(ctx, a); err != nil {
		return nil, result, err
	}
	s.logger.DebugContext(ctx, "automation saved", logging.CategoryKey, logCategory,
		"automation_id", a.ID, "nodes", len(a.Nodes), "warnings", len(result.Warnings))
	return a, result, nil
}

// CredentialIndex adapts a credential store to the validator's lookup.
type CredentialIndex struct {
	Store store.CredentialStore
}

// HasCredential reports whether id is stored.
func (c CredentialIndex) HasCredential(id string) bool {
	if c.Store == nil {
		return false
	}
	cred, err := c.Store.GetCredential(context.Background(), id)
	return err == nil && cred != nil
}

package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/service"
	"github.com/rendis/flowpilot/pkg/schema"
)

const defaultRunsLimit = 10

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}

	type summary struct {
		ID      string                  `json:"id"`
		Name    string                  `json:"name"`
		Status  schema.AutomationStatus `json:"status"`
		Nodes   int                     `json:"nodes"`
		LastRun *schema.LastRun         `json:"lastRun,omitempty"`
	}
	out := make([]summary, 0, len(list))
	for _, a := range list {
		out = append(out, summary{ID: a.ID, Name: a.Name, Status: a.Status, Nodes: len(a.Nodes), LastRun: a.LastRun})
	}
	return marshalResult(map[string]any{"automations": out})
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("automation_id")
	if err != nil {
		return mcp.NewToolResultError("automation_id is required"), nil
	}
	a, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(a)
}

func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := documentArg(req)
	if errResult != nil {
		return errResult, nil
	}
	_, res := s.svc.Validate(raw)
	return marshalResult(map[string]any{
		"valid":    res.Valid(),
		"errors":   res.Errors,
		"warnings": res.Warnings,
	})
}

func (s *Server) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := documentArg(req)
	if errResult != nil {
		return errResult, nil
	}
	a, res := s.svc.Validate(raw)
	if a == nil || !res.Valid() {
		return validationError(res), nil
	}

	var saved *schema.Automation
	var err error
	if id := req.GetString("automation_id", ""); id != "" {
		saved, res, err = s.svc.Update(ctx, id, a)
	} else {
		saved, res, err = s.svc.Create(ctx, a)
	}
	if err != nil {
		if res != nil && !res.Valid() {
			return validationError(res), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"id":       saved.ID,
		"warnings": res.Warnings,
	})
}

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("automation_id")
	if err != nil {
		return mcp.NewToolResultError("automation_id is required"), nil
	}

	seed := map[string]string{}
	for k, v := range mcp.ParseStringMap(req, "variables", nil) {
		seed[k] = fmt.Sprint(v)
	}

	ctx = logging.WithAutomationID(ctx, id)
	log, runErr := s.svc.Run(ctx, id, seed)
	if log == nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", runErr)), nil
	}
	s.logger.InfoContext(ctx, "run finished via mcp", logging.CategoryKey, "mcp",
		"status", log.Status, "duration_ms", log.Duration)
	return marshalResult(log)
}

func (s *Server) handleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("automation_id")
	if err != nil {
		return mcp.NewToolResultError("automation_id is required"), nil
	}
	runs, err := s.svc.Runs(ctx, id, req.GetInt("limit", defaultRunsLimit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("runs query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("automation_id")
	if err != nil {
		return mcp.NewToolResultError("automation_id is required"), nil
	}
	format := req.GetString("format", service.FormatMermaid)

	out, err := s.svc.Diagram(ctx, id, format, req.GetBool("include_run", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram failed: %v", err)), nil
	}
	if format == service.FormatImage {
		return mcp.NewToolResultImage("automation diagram", base64.StdEncoding.EncodeToString(out), "image/png"), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// --- Internal helpers ---

// documentArg re-encodes the "automation" object argument as JSON.
func documentArg(req mcp.CallToolRequest) ([]byte, *mcp.CallToolResult) {
	doc := mcp.ParseStringMap(req, "automation", nil)
	if doc == nil {
		return nil, mcp.NewToolResultError("automation is required")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid automation: %v", err))
	}
	return raw, nil
}

func validationError(res *schema.ValidationResult) *mcp.CallToolResult {
	data, err := json.Marshal(map[string]any{"valid": false, "errors": res.Errors, "warnings": res.Warnings})
	if err != nil {
		return mcp.NewToolResultError("automation failed validation")
	}
	return mcp.NewToolResultError(string(data))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// Package mcp exposes automations to MCP clients over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowpilot/internal/service"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Service *service.Automations
	Logger  *slog.Logger
	Version string
}

// Server wraps an MCP server with flowpilot tool handlers.
type Server struct {
	svc       *service.Automations
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with every tool registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{svc: deps.Service, logger: logger}

	mcpSrv := server.NewMCPServer(
		"flowpilot",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowpilot runs browser automations stored as graphs of steps and conditions. "+
			"Use flowpilot.list to find automations, flowpilot.get to read one, flowpilot.validate before "+
			"flowpilot.save, flowpilot.run to execute and flowpilot.diagram to see the flow."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for tests or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: runsTool(), Handler: s.handleRuns},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func listTool() mcp.Tool {
	return mcp.NewTool("flowpilot.list",
		mcp.WithDescription("List stored automations with their status and last run"),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("flowpilot.get",
		mcp.WithDescription("Get an automation document: nodes, edges and metadata"),
		mcp.WithString("automation_id", mcp.Required(), mcp.Description("ID of the automation")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("flowpilot.validate",
		mcp.WithDescription("Validate an automation document without saving it"),
		mcp.WithObject("automation", mcp.Required(), mcp.Description("Automation document (nodes, edges, name)")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("flowpilot.save",
		mcp.WithDescription("Create an automation, or replace it when automation_id is given"),
		mcp.WithObject("automation", mcp.Required(), mcp.Description("Automation document (nodes, edges, name)")),
		mcp.WithString("automation_id", mcp.Description("ID of the automation to replace")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("flowpilot.run",
		mcp.WithDescription("Run an automation and return its execution log"),
		mcp.WithString("automation_id", mcp.Required(), mcp.Description("ID of the automation to run")),
		mcp.WithObject("variables", mcp.Description("Initial run variables (string values)")),
	)
}

func runsTool() mcp.Tool {
	return mcp.NewTool("flowpilot.runs",
		mcp.WithDescription("List recent runs of an automation, newest first"),
		mcp.WithString("automation_id", mcp.Required(), mcp.Description("ID of the automation")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 10)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowpilot.diagram",
		mcp.WithDescription("Generate a diagram of an automation. Returns Mermaid flowchart syntax, ASCII art or a PNG image"),
		mcp.WithString("automation_id", mcp.Required(), mcp.Description("ID of the automation")),
		mcp.WithString("format",
			mcp.Enum(service.FormatMermaid, service.FormatASCII, service.FormatImage),
			mcp.Description("Output format (default mermaid)"),
		),
		mcp.WithBoolean("include_run", mcp.Description("Overlay the latest run on the nodes")),
	)
}

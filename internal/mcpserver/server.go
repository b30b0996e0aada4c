// Package mcpserver exposes the case runner as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rahul/operator/internal/runner"
	"github.com/rahul/operator/internal/store"
)

const (
	ToolRunCase    = "run_operator_case"
	ToolCaseStatus = "get_case_status"
	ToolListRuns   = "list_case_runs"
)

type CaseRunner interface {
	RunCase(ctx context.Context, url, steps string, headless *bool) runner.CaseResult
}

type History interface {
	GetRun(ctx context.Context, requestID string) (*store.CaseRun, error)
	ListRuns(ctx context.Context, limit int) ([]store.CaseRun, error)
}

type Server struct {
	runner    CaseRunner
	history   History
	mcpServer *server.MCPServer
}

// New builds the server. history may be nil, in which case only
// run_operator_case is registered.
func New(name, version string, r CaseRunner, history History) *Server {
	s := &Server{
		runner:  r,
		history: history,
		mcpServer: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// Start serves over stdin and stdout until the client disconnects.
func (s *Server) Start() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	runTool := mcp.NewTool(ToolRunCase,
		mcp.WithDescription("Run a browser test case written in plain language against a URL and return the step by step result"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page to open before the first step"),
		),
		mcp.WithString("steps",
			mcp.Required(),
			mcp.Description("Instructions, one per line"),
		),
		mcp.WithBoolean("headless",
			mcp.Description("Run the browser without a window (default: configured value)"),
		),
	)
	s.mcpServer.AddTool(runTool, s.handleRunCase)

	if s.history == nil {
		return
	}

	statusTool := mcp.NewTool(ToolCaseStatus,
		mcp.WithDescription("Fetch the recorded result of a previous case by request ID"),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("Request ID returned by run_operator_case"),
		),
	)
	s.mcpServer.AddTool(statusTool, s.handleCaseStatus)

	listTool := mcp.NewTool(ToolListRuns,
		mcp.WithDescription("List the most recent case runs"),
		mcp.WithNumber("limit",
			mcp.Description("How many runs to return (default: 10)"),
		),
	)
	s.mcpServer.AddTool(listTool, s.handleListRuns)
}

func (s *Server) handleRunCase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url argument is required"), nil
	}
	steps, err := request.RequireString("steps")
	if err != nil {
		return mcp.NewToolResultError("steps argument is required"), nil
	}
	var headless *bool
	if _, ok := request.GetArguments()["headless"]; ok {
		h := request.GetBool("headless", true)
		headless = &h
	}

	res := s.runner.RunCase(ctx, url, steps, headless)
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	if !res.Success {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(data))},
			IsError: true,
		}, nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleCaseStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("request_id")
	if err != nil {
		return mcp.NewToolResultError("request_id argument is required"), nil
	}
	run, err := s.history.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Case not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load case: %v", err)), nil
	}
	if run.ResultJSON != "" {
		return mcp.NewToolResultText(run.ResultJSON), nil
	}
	data, _ := json.Marshal(run)
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit < 1 {
		limit = 10
	}
	runs, err := s.history.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list runs: %v", err)), nil
	}
	for i := range runs {
		runs[i].ResultJSON = ""
	}
	if runs == nil {
		runs = []store.CaseRun{}
	}
	data, err := json.Marshal(runs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mcpguard/internal/baseline"
	"mcpguard/internal/guard"
	"mcpguard/internal/logging"
	"mcpguard/internal/model"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine is the subset of the guard engine the tools call.
type Engine interface {
	CheckChanges(ctx context.Context) (*model.ChangeSet, error)
	RevertChanges(ctx context.Context, cs *model.ChangeSet) error
	AcceptChanges(ctx context.Context, cs *model.ChangeSet) error
	AcceptAll(ctx context.Context) (*model.ChangeSet, error)
	Status() (*guard.Status, error)
}

var _ Engine = (*guard.Engine)(nil)

// Server represents an MCP server instance using mcp-go
type Server struct {
	engine    Engine
	logger    *logging.AppLogger
	mcpServer *server.MCPServer
}

// transactionResult is the success payload of revert_changes and accept_changes.
type transactionResult struct {
	Status string   `json:"status"`
	Action string   `json:"action"`
	Paths  []string `json:"paths"`
}

// NewServer creates a server with every tool registered.
func NewServer(engine Engine, version string, logger *logging.AppLogger) *Server {
	s := &Server{
		engine: engine,
		logger: logging.OrDefault(logger),
		mcpServer: server.NewMCPServer("mcpguard", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// Start serves JSON-RPC over stdio until stdin closes.
func (s *Server) Start() error {
	s.logger.Info("Starting MCP server on stdio")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// MCPServer exposes the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func changeSetOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("id",
			mcp.Description("id of the change set returned by check_changes"),
		),
		mcp.WithString("created_at",
			mcp.Description("created_at of the change set returned by check_changes"),
		),
		mcp.WithArray("tracked",
			mcp.Description("tracked paths of the change set returned by check_changes"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("check_changes",
		mcp.WithDescription("Compare the MCP configuration and every server entry point it references with the trusted baseline. Returns the change set; an empty changes list means nothing drifted."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleCheck)

	revertOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Restore the given changes to their baseline content. Files that had no baseline are deleted. Pass back the change set from check_changes."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithArray("changes",
			mcp.Required(),
			mcp.Description("changes from check_changes, unmodified"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	}, changeSetOptions()...)
	s.mcpServer.AddTool(mcp.NewTool("revert_changes", revertOpts...), s.handleRevert)

	acceptOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Make the current content the new baseline. With changes, accepts exactly those entries; without, detects again and accepts everything that changed."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithArray("changes",
			mcp.Description("changes from check_changes, unmodified"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	}, changeSetOptions()...)
	s.mcpServer.AddTool(mcp.NewTool("accept_changes", acceptOpts...), s.handleAccept)

	s.mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Describe the guarded MCP configuration, its servers and the engine state."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleStatus)
}

func (s *Server) handleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Debug("Tool call", "tool", "check_changes")

	cs, err := s.engine.CheckChanges(ctx)
	if err != nil {
		return toolError("check_changes", err), nil
	}
	return jsonResult(cs)
}

func (s *Server) handleRevert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cs, err := bindChangeSet(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if cs == nil {
		return mcp.NewToolResultError("changes is required"), nil
	}
	s.logger.Debug("Tool call", "tool", "revert_changes", "changes", len(cs.Entries))

	if err := s.engine.RevertChanges(ctx, cs); err != nil {
		return toolError("revert_changes", err), nil
	}
	return jsonResult(transactionResult{Status: "ok", Action: "revert", Paths: nonNil(cs.Paths())})
}

func (s *Server) handleAccept(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cs, err := bindChangeSet(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if cs == nil {
		s.logger.Debug("Tool call", "tool", "accept_changes", "mode", "all")
		accepted, err := s.engine.AcceptAll(ctx)
		if err != nil {
			return toolError("accept_changes", err), nil
		}
		return jsonResult(transactionResult{Status: "ok", Action: "accept", Paths: nonNil(accepted.Paths())})
	}

	s.logger.Debug("Tool call", "tool", "accept_changes", "changes", len(cs.Entries))
	if err := s.engine.AcceptChanges(ctx, cs); err != nil {
		return toolError("accept_changes", err), nil
	}
	return jsonResult(transactionResult{Status: "ok", Action: "accept", Paths: nonNil(cs.Paths())})
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.engine.Status()
	if err != nil {
		return toolError("status", err), nil
	}
	return jsonResult(st)
}

// bindChangeSet decodes the change set arguments. It returns nil when the call
// carried no changes argument at all.
func bindChangeSet(req mcp.CallToolRequest) (*model.ChangeSet, error) {
	if _, ok := req.GetArguments()["changes"]; !ok {
		return nil, nil
	}
	var cs model.ChangeSet
	if err := req.BindArguments(&cs); err != nil {
		return nil, fmt.Errorf("invalid change set: %w", err)
	}
	for i, e := range cs.Entries {
		if e.Path == "" {
			return nil, fmt.Errorf("invalid change set: change %d has no path", i)
		}
	}
	return &cs, nil
}

func toolError(tool string, err error) *mcp.CallToolResult {
	logging.Warn("Tool failed", "tool", tool, "error", err)

	var pf *baseline.PartialFailureError
	switch {
	case errors.As(err, &pf):
		payload, _ := json.Marshal(map[string]any{
			"error":        err.Error(),
			"failed_paths": pf.FailedPaths(),
		})
		return mcp.NewToolResultError(string(payload))
	case errors.Is(err, guard.ErrBusy):
		return mcp.NewToolResultError("busy: " + err.Error())
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func nonNil(paths []string) []string {
	if paths == nil {
		return []string{}
	}
	return paths
}

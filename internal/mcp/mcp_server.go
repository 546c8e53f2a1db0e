// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the pipeline MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.StoreManager) *server.MCPServer {
	s := server.NewMCPServer(
		"e-mission Pipeline Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	s.AddTool(mcp.NewTool("get_score_components",
		mcp.WithDescription("Compute the four footprint score components for one user over a time window."),
		mcp.WithString("user", mcp.Description("User UUID to score."), mcp.Required()),
		mcp.WithString("start", mcp.Description("Window start (RFC3339, YYYY-MM-DD, epoch seconds or '2 weeks ago').")),
		mcp.WithString("end", mcp.Description("Window end, same formats as start.")),
		mcp.WithBoolean("use_cache", mcp.Description("Serve and store reports through the score cache.")),
	), h.handleGetScoreComponents)

	s.AddTool(mcp.NewTool("get_pipeline_state",
		mcp.WithDescription("Show the watermark and last run of each pipeline stage."),
		mcp.WithString("user", mcp.Description("User UUID. Every user when omitted.")),
		mcp.WithString("stages", mcp.Description("Comma-separated stages (CONFIRM_TRIPS, EXPORT, SCORE).")),
	), h.handleGetPipelineState)

	s.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("List a user's trip sections with their confirmed travel modes."),
		mcp.WithString("user", mcp.Description("User UUID."), mcp.Required()),
		mcp.WithString("start", mcp.Description("Window start.")),
		mcp.WithString("end", mcp.Description("Window end.")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of sections returned.")),
	), h.handleListSections)

	s.AddTool(mcp.NewTool("list_pipeline_runs",
		mcp.WithDescription("List recorded pipeline stage runs, most recent last."),
		mcp.WithString("user", mcp.Description("User UUID. Every user when omitted.")),
		mcp.WithString("stages", mcp.Description("Comma-separated stages to include.")),
		mcp.WithNumber("limit", mcp.Description("Keep only the most recent N runs.")),
	), h.handleListPipelineRuns)

	return s
}

// StartMCPServer starts the pipeline MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.StoreManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/core"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

var errUserRequired = errors.New("user is required")

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.StoreManager
}

// scoreResponse mirrors the JSON written by `emission score --output json`.
type scoreResponse struct {
	schema.ScoreReport
	Breakdown []schema.EnrichedComponent `json:"breakdown"`
}

// configure clones the base config and applies the common request parameters.
func (h *toolHandler) configure(request mcp.CallToolRequest, userRequired bool) (*contract.Config, error) {
	cfg := h.baseCfg.Clone()
	user := request.GetString("user", "")
	if user == "" {
		if userRequired {
			return nil, errUserRequired
		}
		cfg.UserID = uuid.Nil
	}
	err := contract.RevalidateWindow(cfg,
		user,
		request.GetString("start", ""),
		request.GetString("end", ""),
		request.GetString("stages", ""),
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func textResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleGetScoreComponents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configure(request, true)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid score parameters: %v", err)), nil
	}
	cfg.UseCache = request.GetBool("use_cache", cfg.UseCache)

	report, err := core.GetScoreResults(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scoring failed: %v", err)), nil
	}
	return textResult(scoreResponse{
		ScoreReport: report,
		Breakdown:   schema.EnrichComponents(report, contract.GetPlainLabel),
	})
}

func (h *toolHandler) handleGetPipelineState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configure(request, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid state parameters: %v", err)), nil
	}

	states, err := core.GetPipelineStates(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("state lookup failed: %v", err)), nil
	}
	return textResult(states)
}

func (h *toolHandler) handleListSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configure(request, true)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid section parameters: %v", err)), nil
	}

	sections, err := core.GetSectionResults(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("section lookup failed: %v", err)), nil
	}
	if l := request.GetInt("limit", 0); l > 0 && l < len(sections) {
		sections = sections[:l]
	}
	return textResult(schema.EnrichSections(sections))
}

func (h *toolHandler) handleListPipelineRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configure(request, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid run parameters: %v", err)), nil
	}

	runs, err := core.GetPipelineRuns(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
	}
	if runs == nil {
		runs = []schema.PipelineRunRecord{}
	}
	if l := request.GetInt("limit", 0); l > 0 && l < len(runs) {
		runs = runs[len(runs)-l:]
	}
	return textResult(runs)
}

package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
	mcp_internal "github.com/jiji14/e-mission-server/internal/mcp"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = uuid.MustParse("0763de67-f61e-3f5d-90e7-518e69793954")

func baseConfig() *contract.Config {
	return &contract.Config{
		StartTime: time.Unix(0, 0).UTC(),
		EndTime:   time.Unix(2000, 0).UTC(),
		Stages:    schema.AllStages,
		Workers:   1,
		TimeField: schema.TimeFieldWrite,
		Policy:    schema.DefaultFootprintPolicy(),
	}
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

// newPopulatedManager opens a SQLite store holding two sections for testUser.
func newPopulatedManager(t *testing.T) contract.StoreManager {
	t.Helper()
	store, err := iostore.NewSQLStore(schema.SQLiteBackend, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sections := []schema.SectionData{
		{TripID: "t1", SectionID: "s1", StartTs: 100, EndTs: 700, Distance: 2000, Duration: 600, ConfirmedMode: schema.ModeBus},
		{TripID: "t1", SectionID: "s2", StartTs: 800, EndTs: 1400, Distance: 1000, Duration: 600},
	}
	for _, s := range sections {
		e, err := codec.NewEntry(testUser, schema.KeyCleanedSection, s, 10)
		require.NoError(t, err)
		require.NoError(t, store.InsertEntries(context.Background(), e))
	}
	return iostore.NewStoreManager(store, nil)
}

func TestMCPServerHandlers_ValidationErrors(t *testing.T) {
	// Validation fails before any store is reached.
	var mgr contract.StoreManager
	s := mcp_internal.NewMCPServer(baseConfig(), mgr)

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		contains string
	}{
		{"score missing user", "get_score_components", map[string]any{}, "user is required"},
		{"sections missing user", "list_sections", map[string]any{"limit": 5.0}, "user is required"},
		{"score invalid user", "get_score_components", map[string]any{"user": "nobody"}, "invalid user id"},
		{"score invalid start", "get_score_components", map[string]any{"user": testUser.String(), "start": "whenever"}, "invalid start"},
		{"state invalid stage", "get_pipeline_state", map[string]any{"stages": "SMOOTH"}, "SMOOTH"},
		{"runs start after end", "list_pipeline_runs", map[string]any{"start": "1970-01-03", "end": "1970-01-02"}, "cannot be after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, s, tt.tool, tt.args)
			assert.True(t, res.IsError, "The response should indicate an error state")
			assert.Contains(t, resultText(t, res), tt.contains)
		})
	}
}

func TestMCPServerHandlers_ListSections(t *testing.T) {
	s := mcp_internal.NewMCPServer(baseConfig(), newPopulatedManager(t))

	res := callTool(t, s, "list_sections", map[string]any{"user": testUser.String(), "limit": 1.0})
	require.False(t, res.IsError, resultText(t, res))

	var sections []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &sections))
	require.Len(t, sections, 1)
	assert.Equal(t, float64(1), sections[0]["rank"])
	assert.Equal(t, "s1", sections[0]["section_id"])
}

func TestMCPServerHandlers_ScoreComponents(t *testing.T) {
	s := mcp_internal.NewMCPServer(baseConfig(), newPopulatedManager(t))

	res := callTool(t, s, "get_score_components", map[string]any{"user": testUser.String(), "use_cache": true})
	require.False(t, res.IsError, resultText(t, res))

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	assert.Equal(t, testUser.String(), report["user_id"])
	assert.Equal(t, float64(2), report["section_count"])
	breakdown, ok := report["breakdown"].([]any)
	require.True(t, ok)
	assert.Len(t, breakdown, 4)
}

func TestMCPServerHandlers_PipelineStateAndRuns(t *testing.T) {
	s := mcp_internal.NewMCPServer(baseConfig(), newPopulatedManager(t))

	res := callTool(t, s, "get_pipeline_state", map[string]any{"stages": "EXPORT,SCORE"})
	require.False(t, res.IsError, resultText(t, res))
	var states []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &states))
	require.Len(t, states, 2)
	assert.Equal(t, "EXPORT", states[0]["stage"])
	assert.Nil(t, states[0]["last_processed_ts"])

	res = callTool(t, s, "list_pipeline_runs", map[string]any{"user": testUser.String()})
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "[]", resultText(t, res))
}

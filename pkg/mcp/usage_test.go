package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r9s-dev/r9s/pkg/agents"
	"github.com/r9s-dev/r9s/pkg/usage"
)

type usageSummaryResponse struct {
	Period  string      `json:"period"`
	GroupBy string      `json:"group_by"`
	Summary usage.Stats `json:"summary"`
}

type usageBreakdownResponse struct {
	Period  string               `json:"period"`
	GroupBy string               `json:"group_by"`
	Summary usage.BreakdownStats `json:"summary"`
}

func newUsageServer(t *testing.T) (*Server, *agents.LocalStore, *agents.AuditStore) {
	t.Helper()
	store, audit := newStores(t)
	s, err := New(Config{Agents: store, Audit: audit, Modules: []string{ModuleUsage}})
	require.NoError(t, err)
	return s, store, audit
}

func recordExecution(t *testing.T, audit *agents.AuditStore, agent, model string, ts time.Time, input, output int) {
	t.Helper()
	err := audit.Record(context.Background(), &agents.Execution{
		AgentName:    agent,
		AgentVersion: "1.0.0",
		Model:        model,
		Timestamp:    ts,
		InputTokens:  input,
		OutputTokens: output,
	})
	require.NoError(t, err)
}

func TestUsageSummaryTool(t *testing.T) {
	s, store, audit := newUsageServer(t)
	seedAgent(t, store, "support", agents.CreateRequest{Instructions: "You help."})
	seedAgent(t, store, "triage", agents.CreateRequest{Instructions: "You triage."})

	now := time.Now()
	recordExecution(t, audit, "support", "r9s-chat", now, 100, 50)
	recordExecution(t, audit, "support", "r9s-chat", now, 200, 100)
	recordExecution(t, audit, "triage", "gpt-4o", now.AddDate(0, 0, -40), 30, 20)

	var out usageSummaryResponse
	callJSON(t, s, "get_usage_summary", nil, &out)
	assert.Equal(t, "month", out.Period)
	assert.Empty(t, out.GroupBy)
	assert.Equal(t, usage.TokenUsage{InputTokens: 300, OutputTokens: 150}, out.Summary.Total)
	assert.Equal(t, 2, out.Summary.TotalExecutions)
	require.Len(t, out.Summary.Daily, 1)
	assert.Equal(t, 2, out.Summary.Daily[0].Executions)
}

func TestUsageSummaryToolAllTime(t *testing.T) {
	s, store, audit := newUsageServer(t)
	seedAgent(t, store, "support", agents.CreateRequest{Instructions: "You help."})

	now := time.Now()
	recordExecution(t, audit, "support", "r9s-chat", now, 100, 50)
	recordExecution(t, audit, "support", "r9s-chat", now.AddDate(0, 0, -40), 30, 20)

	var out usageSummaryResponse
	callJSON(t, s, "get_usage_summary", map[string]any{"period": "all_time"}, &out)
	assert.Equal(t, "all_time", out.Period)
	assert.Equal(t, 2, out.Summary.TotalExecutions)
	assert.Equal(t, usage.TokenUsage{InputTokens: 130, OutputTokens: 70}, out.Summary.Total)
}

func TestUsageSummaryToolGroupByModel(t *testing.T) {
	s, store, audit := newUsageServer(t)
	seedAgent(t, store, "support", agents.CreateRequest{Instructions: "You help."})
	seedAgent(t, store, "triage", agents.CreateRequest{Instructions: "You triage."})

	now := time.Now()
	recordExecution(t, audit, "support", "r9s-chat", now, 100, 50)
	recordExecution(t, audit, "triage", "gpt-4o", now, 30, 20)

	var out usageBreakdownResponse
	callJSON(t, s, "get_usage_summary", map[string]any{"group_by": "model"}, &out)
	assert.Equal(t, "model", out.GroupBy)
	require.Contains(t, out.Summary.Groups, "r9s-chat")
	require.Contains(t, out.Summary.Groups, "gpt-4o")
	assert.Equal(t, usage.TokenUsage{InputTokens: 100, OutputTokens: 50}, out.Summary.Groups["r9s-chat"].Usage)
	assert.Equal(t, 2, out.Summary.TotalExecutions)
}

func TestUsageSummaryToolGroupByAgent(t *testing.T) {
	s, store, audit := newUsageServer(t)
	seedAgent(t, store, "support", agents.CreateRequest{Instructions: "You help."})
	seedAgent(t, store, "triage", agents.CreateRequest{Instructions: "You triage."})

	now := time.Now()
	recordExecution(t, audit, "support", "r9s-chat", now, 100, 50)
	recordExecution(t, audit, "support", "r9s-chat", now, 10, 5)
	recordExecution(t, audit, "triage", "gpt-4o", now, 30, 20)

	var out usageBreakdownResponse
	callJSON(t, s, "get_usage_summary", map[string]any{"group_by": "agent"}, &out)
	assert.Equal(t, "agent", out.GroupBy)
	require.Contains(t, out.Summary.Groups, "support")
	assert.Equal(t, 2, out.Summary.Groups["support"].Executions)
	assert.Equal(t, []string{"support", "triage"}, out.Summary.SortedGroups())
}

func TestUsageSummaryToolEmptyStore(t *testing.T) {
	s, _, _ := newUsageServer(t)

	var out usageSummaryResponse
	callJSON(t, s, "get_usage_summary", nil, &out)
	assert.Zero(t, out.Summary.TotalExecutions)
	assert.Empty(t, out.Summary.Daily)
}

func TestUsageSummaryToolBadPeriod(t *testing.T) {
	s, _, _ := newUsageServer(t)

	msg := callError(t, s, "get_usage_summary", map[string]any{"period": "fortnight"})
	assert.Contains(t, msg, `unknown period "fortnight"`)
}

func TestUsageSummaryToolBadGroupBy(t *testing.T) {
	s, _, _ := newUsageServer(t)

	msg := callError(t, s, "get_usage_summary", map[string]any{"group_by": "project"})
	assert.Equal(t, "unknown group_by: use day, model, or agent", msg)
}

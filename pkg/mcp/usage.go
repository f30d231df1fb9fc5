package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/r9s-dev/r9s/pkg/usage"
)

type usageSummaryArgs struct {
	Period  string `json:"period,omitempty" jsonschema:"enum=today,enum=week,enum=month,enum=all_time,default=month,description=Rolling window to summarize"`
	GroupBy string `json:"group_by,omitempty" jsonschema:"enum=day,enum=model,enum=agent,description=Breakdown dimension (default: day)"`
}

func (s *Server) registerUsageTools() error {
	summaryTool, err := newTool[usageSummaryArgs]("get_usage_summary",
		"Summarize token usage recorded in the local agent audit logs.")
	if err != nil {
		return err
	}
	s.register(summaryTool, s.handleUsageSummary)
	return nil
}

func (s *Server) handleUsageSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args usageSummaryArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	period := args.Period
	if period == "" {
		period = usage.PeriodMonth
	}
	start, err := usage.PeriodStart(period, time.Now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	list, err := s.agents.ListAgents(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := make([]string, 0, len(list))
	for _, agent := range list {
		names = append(names, agent.Name)
	}
	records, err := usage.Collect(ctx, s.audit, names)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var end time.Time
	out := map[string]any{"period": period}
	switch args.GroupBy {
	case "", usage.GroupByDay:
		out["summary"] = usage.Summarize(records, start, end)
	case usage.GroupByModel:
		out["group_by"] = usage.GroupByModel
		out["summary"] = usage.SummarizeByModel(records, start, end)
	case usage.GroupByAgent:
		out["group_by"] = usage.GroupByAgent
		out["summary"] = usage.SummarizeByAgent(records, start, end)
	default:
		return mcp.NewToolResultError("unknown group_by: use day, model, or agent"), nil
	}
	return jsonResult(out)
}

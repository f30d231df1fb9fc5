package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/r9s-dev/r9s/pkg/logger"
	"github.com/r9s-dev/r9s/pkg/runner"
)

const defaultListAgentsLimit = 20

type listAgentsArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=draft,enum=approved,enum=deprecated,description=Filter by version status"`
	Limit  int    `json:"limit,omitempty" jsonschema:"default=20,description=Maximum agents to return"`
}

type getAgentArgs struct {
	Name    string `json:"name" jsonschema:"description=Agent name"`
	Version string `json:"version,omitempty" jsonschema:"description=Specific version (default: current)"`
}

type invokeAgentArgs struct {
	Name      string            `json:"name" jsonschema:"description=Agent name to invoke"`
	Input     string            `json:"input" jsonschema:"description=User message to send to the agent"`
	Variables map[string]string `json:"variables,omitempty" jsonschema:"description=Variables to inject into the instruction template"`
}

type agentSummary struct {
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CurrentVersion string    `json:"current_version"`
	Status         string    `json:"status,omitempty"`
	Model          string    `json:"model,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type versionDetail struct {
	Version      string         `json:"version"`
	Status       string         `json:"status"`
	Model        string         `json:"model,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Instructions string         `json:"instructions"`
	Variables    []string       `json:"variables,omitempty"`
	Skills       []string       `json:"skills,omitempty"`
	ModelParams  map[string]any `json:"model_params,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
	ChangeReason string         `json:"change_reason,omitempty"`
	ContentHash  string         `json:"content_hash"`
}

type agentDetail struct {
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	CurrentVersion string        `json:"current_version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Version        versionDetail `json:"version"`
}

type invokeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type invokeResult struct {
	Agent       string      `json:"agent"`
	Version     string      `json:"version"`
	Model       string      `json:"model,omitempty"`
	Response    string      `json:"response"`
	Usage       invokeUsage `json:"usage"`
	ExecutionID string      `json:"execution_id,omitempty"`
}

func (s *Server) registerAgentTools() error {
	listTool, err := newTool[listAgentsArgs]("list_agents",
		"List r9s agents with descriptions and versions.")
	if err != nil {
		return err
	}
	s.register(listTool, s.handleListAgents)

	getTool, err := newTool[getAgentArgs]("get_agent",
		"Get full configuration of an agent.")
	if err != nil {
		return err
	}
	s.register(getTool, s.handleGetAgent)

	invokeTool, err := newTool[invokeAgentArgs]("invoke_agent",
		"Invoke an r9s agent with input. The agent runs through r9s Gateway with automatic routing.")
	if err != nil {
		return err
	}
	s.register(invokeTool, s.handleInvokeAgent)
	return nil
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listAgentsArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListAgentsLimit
	}

	list, err := s.agents.ListAgents(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summaries := make([]agentSummary, 0, len(list))
	for _, agent := range list {
		v, err := s.agents.GetVersion(ctx, agent.Name, agent.CurrentVersion)
		if err != nil {
			logger.G(ctx).WithField("agent", agent.Name).WithError(err).Warn("skipping agent with unreadable current version")
			continue
		}
		if args.Status != "" && v.Status != args.Status {
			continue
		}
		summaries = append(summaries, agentSummary{
			Name:           agent.Name,
			Description:    agent.Description,
			CurrentVersion: agent.CurrentVersion,
			Status:         v.Status,
			Model:          v.Model,
			UpdatedAt:      agent.UpdatedAt,
		})
		if len(summaries) >= limit {
			break
		}
	}

	return jsonResult(map[string]any{
		"agents": summaries,
		"total":  len(summaries),
	})
}

func (s *Server) handleGetAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args getAgentArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	agent, err := s.agents.GetAgent(ctx, args.Name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version := args.Version
	if version == "" {
		version = agent.CurrentVersion
	}
	v, err := s.agents.GetVersion(ctx, args.Name, version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(agentDetail{
		Name:           agent.Name,
		Description:    agent.Description,
		CurrentVersion: agent.CurrentVersion,
		CreatedAt:      agent.CreatedAt,
		UpdatedAt:      agent.UpdatedAt,
		Version: versionDetail{
			Version:      v.Version,
			Status:       v.Status,
			Model:        v.Model,
			Provider:     v.Provider,
			Instructions: v.Instructions,
			Variables:    v.Variables,
			Skills:       v.Skills,
			ModelParams:  v.ModelParams,
			CreatedAt:    v.CreatedAt,
			CreatedBy:    v.CreatedBy,
			ChangeReason: v.ChangeReason,
			ContentHash:  v.ContentHash,
		},
	})
}

func (s *Server) handleInvokeAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args invokeAgentArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Name == "" || args.Input == "" {
		return mcp.NewToolResultError("name and input are required"), nil
	}
	if s.gateway == nil {
		return mcp.NewToolResultError(errGatewayNotConfigured), nil
	}

	result, err := s.runner.Run(ctx, runner.RunRequest{
		AgentName: args.Name,
		Input:     args.Input,
		Variables: args.Variables,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := invokeResult{
		Agent:    args.Name,
		Version:  result.Version.Version,
		Model:    result.Response.Model,
		Response: result.Response.Content,
		Usage: invokeUsage{
			InputTokens:  result.Response.Usage.PromptTokens,
			OutputTokens: result.Response.Usage.CompletionTokens,
		},
	}
	if result.Execution != nil {
		out.ExecutionID = result.Execution.ExecutionID
	}
	return jsonResult(out)
}

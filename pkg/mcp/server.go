// Package mcp exposes the local agent store, audit log, and gateway as
// a Model Context Protocol server. Tools are grouped into modules
// (agents, models, usage) that can be enabled independently, so a
// deployment can serve agent invocation without exposing usage data and
// vice versa.
package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/r9s-dev/r9s/pkg/agents"
	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/runner"
	"github.com/r9s-dev/r9s/pkg/skills"
)

const serverName = "r9s"

// Tool modules.
const (
	ModuleAgents = "agents"
	ModuleModels = "models"
	ModuleUsage  = "usage"
)

// AllModules lists the registerable tool modules.
func AllModules() []string {
	return []string{ModuleAgents, ModuleModels, ModuleUsage}
}

// Config wires the server's backing components. Gateway may be nil for
// listing tools; tools that need it fail at call time with a tool
// error.
type Config struct {
	// Agents is required for the agents and usage modules.
	Agents *agents.LocalStore
	// Skills enables skill context composition on invoke_agent.
	Skills *skills.LocalStore
	// Audit is required for the usage module and, when set, records
	// invoke_agent executions.
	Audit *agents.AuditStore
	// Gateway serves the models module and invoke_agent.
	Gateway *gateway.Client
	// Modules restricts which tool modules are registered. Empty
	// enables all of them.
	Modules []string
	// Version is reported to MCP clients during initialization.
	Version string
}

// Server hosts the registered tools over an MCP stdio transport.
type Server struct {
	mcp      *server.MCPServer
	agents   *agents.LocalStore
	audit    *agents.AuditStore
	gateway  *gateway.Client
	runner   *runner.Runner
	tools    []mcp.Tool
	handlers map[string]server.ToolHandlerFunc
}

// New builds a server with the requested modules registered. Store
// requirements are checked up front; gateway credentials are not, so a
// server can be constructed for tool listing without an API key.
func New(cfg Config) (*Server, error) {
	enabled, err := resolveModules(cfg.Modules)
	if err != nil {
		return nil, err
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		agents:   cfg.Agents,
		audit:    cfg.Audit,
		gateway:  cfg.Gateway,
		handlers: make(map[string]server.ToolHandlerFunc),
	}
	s.mcp = server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	if enabled[ModuleAgents] {
		if cfg.Agents == nil {
			return nil, errors.New("agents module requires an agent store")
		}
		var runnerOpts []runner.Option
		if cfg.Skills != nil {
			runnerOpts = append(runnerOpts, runner.WithSkillStore(cfg.Skills))
		}
		if cfg.Audit != nil {
			runnerOpts = append(runnerOpts, runner.WithAuditStore(cfg.Audit))
		}
		s.runner = runner.New(cfg.Agents, cfg.Gateway, runnerOpts...)
		if err := s.registerAgentTools(); err != nil {
			return nil, err
		}
	}
	if enabled[ModuleModels] {
		if err := s.registerModelTools(); err != nil {
			return nil, err
		}
	}
	if enabled[ModuleUsage] {
		if cfg.Agents == nil || cfg.Audit == nil {
			return nil, errors.New("usage module requires the agent and audit stores")
		}
		if err := s.registerUsageTools(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func resolveModules(requested []string) (map[string]bool, error) {
	valid := make(map[string]bool)
	for _, m := range AllModules() {
		valid[m] = true
	}
	if len(requested) == 0 {
		return valid, nil
	}

	enabled := make(map[string]bool)
	for _, m := range requested {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if !valid[m] {
			return nil, errors.Errorf("unknown module %q: valid modules are %s", m, strings.Join(AllModules(), ", "))
		}
		enabled[m] = true
	}
	if len(enabled) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return enabled, nil
}

func (s *Server) register(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool)
	s.handlers[tool.Name] = handler
	s.mcp.AddTool(tool, handler)
}

// Tools returns the registered tool definitions in registration order.
func (s *Server) Tools() []mcp.Tool {
	return append([]mcp.Tool(nil), s.tools...)
}

// CallTool dispatches one tool call without going through a transport.
// It backs the `mcp test` command.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	handler, ok := s.handlers[name]
	if !ok {
		return nil, errors.Errorf("unknown tool %q", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return handler(ctx, req)
}

// ServeStdio runs the server over stdin/stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// newTool reflects T into the tool's input schema. Schema fields follow
// the struct's json tags; omitempty marks a field optional.
func newTool[T any](name, description string) (mcp.Tool, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return mcp.Tool{}, errors.Wrapf(err, "building schema for tool %q", name)
	}
	return mcp.NewToolWithRawSchema(name, description, schema), nil
}

func decodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "building argument decoder")
	}
	if err := decoder.Decode(args); err != nil {
		return errors.Wrap(err, "decoding tool arguments")
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

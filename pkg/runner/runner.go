// Package runner executes stored agents end to end: it resolves the
// requested version, renders the instruction template, composes the
// system prompt with skill context, sends the conversation through the
// gateway, and appends an execution record to the agent's audit log.
package runner

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/r9s-dev/r9s/pkg/agents"
	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/logger"
	"github.com/r9s-dev/r9s/pkg/skills"
)

// Runner wires the agent store to the gateway. Skill and audit stores
// are optional; without them skill context and audit recording are
// skipped.
type Runner struct {
	agents  *agents.LocalStore
	gateway *gateway.Client
	skills  *skills.LocalStore
	audit   *agents.AuditStore
}

// Option configures a Runner.
type Option func(*Runner)

// WithSkillStore enables skill context composition for agents that
// reference skills.
func WithSkillStore(store *skills.LocalStore) Option {
	return func(r *Runner) {
		r.skills = store
	}
}

// WithAuditStore enables execution recording.
func WithAuditStore(store *agents.AuditStore) Option {
	return func(r *Runner) {
		r.audit = store
	}
}

// New builds a Runner over an agent store and gateway client.
func New(agentStore *agents.LocalStore, gw *gateway.Client, opts ...Option) *Runner {
	r := &Runner{agents: agentStore, gateway: gw}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunRequest is one agent invocation.
type RunRequest struct {
	AgentName string
	// Version overrides the agent's current version when set.
	Version   string
	Input     string
	Variables map[string]string
	// History carries prior turns for a continuing conversation.
	History   []gateway.Message
	SessionID string
	// Stream, when set, receives content deltas as they arrive.
	Stream func(delta string)
}

// RunResult carries the reply and the resolved execution context.
type RunResult struct {
	Response *gateway.ChatResponse
	Version  *agents.AgentVersion
	System   string
	// Execution is the recorded audit entry, nil when auditing is off.
	Execution *agents.Execution
}

// Run invokes an agent once. The system prompt is the version's
// instructions with {{variable}} substitution, extended with the
// context of any skills the version references.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, errors.New("input cannot be empty")
	}

	version := req.Version
	if version == "" {
		agent, err := r.agents.GetAgent(ctx, req.AgentName)
		if err != nil {
			return nil, err
		}
		version = agent.CurrentVersion
	}
	v, err := r.agents.GetVersion(ctx, req.AgentName, version)
	if err != nil {
		return nil, err
	}

	system := agents.RenderTemplate(v.Instructions, req.Variables)
	if r.skills != nil && len(v.Skills) > 0 {
		system, err = r.skills.BuildSystemPrompt(ctx, system, v.Skills)
		if err != nil {
			return nil, err
		}
	}

	model := v.Model
	if model == "" {
		model = gateway.ModelFromEnv()
	}

	messages := make([]gateway.Message, 0, len(req.History)+2)
	messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Content: system})
	messages = append(messages, req.History...)
	messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: req.Input})

	chatReq := gateway.ChatRequest{
		Model:    model,
		Messages: messages,
	}
	params, err := gateway.DecodeSamplingParams(v.ModelParams)
	if err != nil {
		return nil, errors.Wrapf(err, "agent %q version %s", req.AgentName, v.Version)
	}
	params.ApplyTo(&chatReq)

	var resp *gateway.ChatResponse
	if req.Stream != nil {
		resp, err = r.gateway.ChatStream(ctx, chatReq, req.Stream)
	} else {
		resp, err = r.gateway.Chat(ctx, chatReq)
	}
	if err != nil {
		return nil, err
	}

	result := &RunResult{Response: resp, Version: v, System: system}
	if r.audit != nil {
		execution := &agents.Execution{
			AgentName:    req.AgentName,
			AgentVersion: v.Version,
			ContentHash:  v.ContentHash,
			RequestID:    resp.ID,
			Model:        resp.Model,
			Provider:     v.Provider,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			SessionID:    req.SessionID,
		}
		if execution.Model == "" {
			execution.Model = model
		}
		// The reply already succeeded; a failed audit write must not
		// destroy it.
		if err := r.audit.Record(ctx, execution); err != nil {
			logger.G(ctx).WithError(err).WithFields(logrus.Fields{
				"agent":   req.AgentName,
				"version": v.Version,
			}).Warn("failed to record execution")
		}
		result.Execution = execution
	}

	return result, nil
}

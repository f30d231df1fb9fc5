package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/r9s-dev/r9s/pkg/gateway"
	"github.com/r9s-dev/r9s/pkg/parallel"
)

const (
	defaultListModelsLimit   = 50
	defaultCompareMaxTokens  = 500
	compareResponseMaxRunes  = 1000
	comparePromptMaxRunes    = 200
	compareMinModels         = 2
	compareMaxModels         = 4
	errGatewayNotConfigured  = "gateway client not configured: set R9S_API_KEY"
	noteModelAvailability    = "Use get_model_status for real-time availability"
	noteRecommendationSource = "Recommendations based on general benchmarks. Actual performance may vary."
	noteCompareTruncation    = "Response text truncated to 1000 chars for display"
)

type listModelsArgs struct {
	Provider string `json:"provider,omitempty" jsonschema:"enum=anthropic,enum=openai,enum=google,description=Filter by provider inferred from the model ID"`
	Limit    int    `json:"limit,omitempty" jsonschema:"default=50,description=Maximum models to return"`
}

type modelStatusArgs struct {
	Models []string `json:"models,omitempty" jsonschema:"description=Model IDs to check (default: all)"`
}

type recommendModelArgs struct {
	Task     string `json:"task" jsonschema:"enum=code_generation,enum=code_review,enum=writing,enum=analysis,enum=chat,enum=translation,enum=summarization,enum=math,enum=creative,description=Kind of work the model will do"`
	Priority string `json:"priority,omitempty" jsonschema:"enum=quality,enum=speed,enum=cost,default=quality,description=What to optimize for"`
}

type compareModelsArgs struct {
	Prompt       string   `json:"prompt" jsonschema:"description=Prompt to send to every model"`
	Models       []string `json:"models" jsonschema:"description=Model IDs to compare (2 to 4)"`
	MaxTokens    int      `json:"max_tokens,omitempty" jsonschema:"default=500,description=Completion budget per model"`
	SystemPrompt string   `json:"system_prompt,omitempty" jsonschema:"description=Optional system prompt shared by all models"`
}

type modelSummary struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created,omitempty"`
}

type modelStatus struct {
	Model   string `json:"model"`
	Status  string `json:"status"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type compareTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type compareEntry struct {
	Model     string         `json:"model"`
	Response  string         `json:"response,omitempty"`
	Tokens    *compareTokens `json:"tokens,omitempty"`
	Error     string         `json:"error,omitempty"`
	LatencyMS int64          `json:"latency_ms"`
	Status    string         `json:"status"`
}

// recommendations maps task and priority to model IDs in preference
// order. A static heuristic table, not live benchmark data.
var recommendations = map[string]map[string][]string{
	"code_generation": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o", "deepseek-chat"},
		"speed":   {"gpt-4o-mini", "claude-3-5-haiku-20241022", "deepseek-chat"},
		"cost":    {"deepseek-chat", "gpt-4o-mini", "glm-4-flash"},
	},
	"code_review": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o"},
		"speed":   {"gpt-4o-mini", "claude-3-5-haiku-20241022"},
		"cost":    {"deepseek-chat", "glm-4-flash"},
	},
	"writing": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o"},
		"speed":   {"gpt-4o-mini", "claude-3-5-haiku-20241022"},
		"cost":    {"glm-4-flash", "deepseek-chat"},
	},
	"analysis": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o", "gemini-1.5-pro"},
		"speed":   {"gpt-4o-mini", "gemini-1.5-flash"},
		"cost":    {"deepseek-chat", "glm-4-flash"},
	},
	"chat": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o"},
		"speed":   {"gpt-4o-mini", "claude-3-5-haiku-20241022"},
		"cost":    {"glm-4-flash", "deepseek-chat"},
	},
	"translation": {
		"quality": {"gpt-4o", "claude-sonnet-4-20250514"},
		"speed":   {"gpt-4o-mini", "deepseek-chat"},
		"cost":    {"deepseek-chat", "glm-4-flash"},
	},
	"summarization": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o"},
		"speed":   {"gpt-4o-mini", "gemini-1.5-flash"},
		"cost":    {"deepseek-chat", "glm-4-flash"},
	},
	"math": {
		"quality": {"gpt-4o", "claude-sonnet-4-20250514", "deepseek-chat"},
		"speed":   {"gpt-4o-mini", "deepseek-chat"},
		"cost":    {"deepseek-chat", "glm-4-flash"},
	},
	"creative": {
		"quality": {"claude-sonnet-4-20250514", "gpt-4o"},
		"speed":   {"gpt-4o-mini", "claude-3-5-haiku-20241022"},
		"cost":    {"glm-4-flash", "deepseek-chat"},
	},
}

func (s *Server) registerModelTools() error {
	listTool, err := newTool[listModelsArgs]("list_models",
		"List models available through r9s Gateway.")
	if err != nil {
		return err
	}
	s.register(listTool, s.handleListModels)

	statusTool, err := newTool[modelStatusArgs]("get_model_status",
		"Check availability of models on r9s Gateway.")
	if err != nil {
		return err
	}
	s.register(statusTool, s.handleModelStatus)

	recommendTool, err := newTool[recommendModelArgs]("recommend_model",
		"Recommend a model for a task based on priority.")
	if err != nil {
		return err
	}
	s.register(recommendTool, s.handleRecommendModel)

	compareTool, err := newTool[compareModelsArgs]("compare_models",
		"Send the same prompt to multiple models and compare responses.")
	if err != nil {
		return err
	}
	s.register(compareTool, s.handleCompareModels)
	return nil
}

// providerMatch reports whether a model ID looks like it belongs to
// the named provider. The gateway flattens providers into a single
// model list, so inference from the ID is all we have.
func providerMatch(provider, modelID string) bool {
	id := strings.ToLower(modelID)
	switch provider {
	case "anthropic":
		return strings.Contains(id, "claude")
	case "openai":
		return strings.Contains(id, "gpt")
	case "google":
		return strings.Contains(id, "gemini")
	default:
		return true
	}
}

func (s *Server) handleListModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listModelsArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.gateway == nil {
		return mcp.NewToolResultError(errGatewayNotConfigured), nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListModelsLimit
	}
	provider := strings.ToLower(args.Provider)

	models, err := s.gateway.ListModels(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filtered := make([]modelSummary, 0, len(models))
	for _, m := range models {
		if provider != "" && !providerMatch(provider, m.ID) {
			continue
		}
		filtered = append(filtered, modelSummary{ID: m.ID, OwnedBy: m.OwnedBy, Created: m.Created})
		if len(filtered) >= limit {
			break
		}
	}

	return jsonResult(map[string]any{
		"models": filtered,
		"total":  len(filtered),
		"note":   noteModelAvailability,
	})
}

func (s *Server) handleModelStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelStatusArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.gateway == nil {
		return mcp.NewToolResultError(errGatewayNotConfigured), nil
	}

	models, err := s.gateway.ListModels(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	requested := make(map[string]bool, len(args.Models))
	for _, m := range args.Models {
		requested[m] = true
	}

	available := make(map[string]bool, len(models))
	statuses := make([]modelStatus, 0, len(models))
	for _, m := range models {
		available[m.ID] = true
		if len(requested) > 0 && !requested[m.ID] {
			continue
		}
		statuses = append(statuses, modelStatus{Model: m.ID, Status: "available", OwnedBy: m.OwnedBy})
	}
	for _, m := range args.Models {
		if !available[m] {
			statuses = append(statuses, modelStatus{Model: m, Status: "not_found"})
		}
	}

	return jsonResult(map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    statuses,
	})
}

func (s *Server) handleRecommendModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args recommendModelArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task := args.Task
	if task == "" {
		task = "chat"
	}
	priority := args.Priority
	if priority == "" {
		priority = "quality"
	}

	taskRecs, ok := recommendations[task]
	if !ok {
		taskRecs = recommendations["chat"]
	}
	candidates, ok := taskRecs[priority]
	if !ok {
		candidates = taskRecs["quality"]
	}

	// Narrow to models the gateway actually routes to when it can be
	// asked. Recommendations still work offline.
	available := map[string]bool{}
	if s.gateway != nil {
		if models, err := s.gateway.ListModels(ctx); err == nil {
			for _, m := range models {
				available[m.ID] = true
			}
		}
	}

	var primary string
	var alternatives []string
	for _, id := range candidates {
		if len(available) > 0 && !available[id] {
			continue
		}
		if primary == "" {
			primary = id
		} else {
			alternatives = append(alternatives, id)
		}
	}
	if primary == "" {
		primary = candidates[0]
	}
	if len(alternatives) > 2 {
		alternatives = alternatives[:2]
	}

	taskLabel := strings.ReplaceAll(task, "_", " ")
	alts := make([]map[string]string, 0, len(alternatives))
	for _, m := range alternatives {
		alts = append(alts, map[string]string{
			"model":  m,
			"reason": "Alternative for " + taskLabel,
		})
	}

	return jsonResult(map[string]any{
		"recommendation": map[string]string{
			"model":    primary,
			"task":     task,
			"priority": priority,
			"reason":   "Best " + priority + " option for " + taskLabel,
		},
		"alternatives": alts,
		"note":         noteRecommendationSource,
	})
}

func (s *Server) handleCompareModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args compareModelsArgs
	if err := decodeArgs(request.Params.Arguments, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Prompt == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	if len(args.Models) < compareMinModels {
		return mcp.NewToolResultError("At least 2 models required for comparison"), nil
	}
	if len(args.Models) > compareMaxModels {
		return mcp.NewToolResultError("Maximum 4 models allowed for comparison"), nil
	}
	if s.gateway == nil {
		return mcp.NewToolResultError(errGatewayNotConfigured), nil
	}

	maxTokens := args.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultCompareMaxTokens
	}

	var messages []gateway.Message
	if args.SystemPrompt != "" {
		messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Content: args.SystemPrompt})
	}
	messages = append(messages, gateway.Message{Role: gateway.RoleUser, Content: args.Prompt})

	results := parallel.Map(ctx, args.Models, func(ctx context.Context, model string) (*gateway.ChatResponse, error) {
		return s.gateway.Chat(ctx, gateway.ChatRequest{
			Model:     model,
			Messages:  messages,
			MaxTokens: maxTokens,
		})
	}, parallel.Options{Concurrency: len(args.Models)})

	entries := make([]compareEntry, 0, len(results))
	var fastest, slowest compareEntry
	for _, r := range results {
		model := args.Models[r.Index]
		if !r.OK {
			entries = append(entries, compareEntry{
				Model:     model,
				Error:     r.Err.Error(),
				LatencyMS: r.LatencyMS,
				Status:    "error",
			})
			continue
		}
		entry := compareEntry{
			Model:    model,
			Response: truncate(r.Value.Content, compareResponseMaxRunes),
			Tokens: &compareTokens{
				Input:  r.Value.Usage.PromptTokens,
				Output: r.Value.Usage.CompletionTokens,
			},
			LatencyMS: r.LatencyMS,
			Status:    "success",
		}
		entries = append(entries, entry)
		if fastest.Model == "" || entry.LatencyMS < fastest.LatencyMS {
			fastest = entry
		}
		if slowest.Model == "" || entry.LatencyMS > slowest.LatencyMS {
			slowest = entry
		}
	}

	comparison := map[string]string{}
	if fastest.Model != "" {
		comparison["fastest"] = fastest.Model
		comparison["slowest"] = slowest.Model
	}

	return jsonResult(map[string]any{
		"prompt":     truncate(args.Prompt, comparePromptMaxRunes),
		"results":    entries,
		"comparison": comparison,
		"note":       noteCompareTruncation,
	})
}

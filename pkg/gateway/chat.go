package gateway

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/r9s-dev/r9s/pkg/telemetry"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
	Stop        []string
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the assistant's reply plus call metadata.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Chat sends a chat completion request and waits for the full reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}

	params := toOpenAIRequest(req)

	var resp openai.ChatCompletionResponse
	err := telemetry.WithSpan(ctx, "gateway.chat", func(ctx context.Context) error {
		r, err := c.openai.CreateChatCompletion(ctx, params)
		resp = r
		return err
	}, attribute.String("model", req.Model))
	if err != nil {
		return nil, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices returned")
	}

	telemetry.AddEvent(ctx, "gateway.chat_complete",
		attribute.Int("prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	choice := resp.Choices[0]
	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage:        fromOpenAIUsage(resp.Usage),
	}, nil
}

// ChatStream sends a chat completion request and invokes onDelta for
// every content fragment as it arrives. The accumulated reply and final
// usage are returned once the stream ends.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onDelta func(delta string)) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}

	params := toOpenAIRequest(req)
	params.Stream = true
	params.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.openai.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "opening chat stream")
	}
	defer stream.Close()

	var content strings.Builder
	var usage openai.Usage
	var id, model string
	var finishReason openai.FinishReason

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "receiving stream chunk")
		}

		if id == "" && chunk.ID != "" {
			id = chunk.ID
		}
		if model == "" && chunk.Model != "" {
			model = chunk.Model
		}
		// Usage arrives in a trailing chunk when IncludeUsage is set.
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(choice.Delta.Content)
				}
			}
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
	}

	telemetry.AddEvent(ctx, "gateway.chat_stream_complete",
		attribute.Int("prompt_tokens", usage.PromptTokens),
		attribute.Int("completion_tokens", usage.CompletionTokens),
	)

	return &ChatResponse{
		ID:           id,
		Model:        model,
		Content:      content.String(),
		FinishReason: string(finishReason),
		Usage:        fromOpenAIUsage(usage),
	}, nil
}

func toOpenAIRequest(req ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
}

func fromOpenAIUsage(usage openai.Usage) Usage {
	return Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
}

package gateway

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/r9s-dev/r9s/pkg/telemetry"
)

// DefaultMaxTokens bounds a messages call when the request does not set
// a limit; the messages endpoint requires one.
const DefaultMaxTokens = 1024

// MessagesRequest describes one call to the Anthropic-style messages
// endpoint. Messages alternate user/assistant; the system prompt rides
// in its own field.
type MessagesRequest struct {
	Model     string
	System    string
	MaxTokens int64
	Messages  []Message
}

// Messages sends a request through the gateway's Anthropic-compatible
// endpoint and returns the reply in the same shape as Chat.
func (c *Client) Messages(ctx context.Context, req MessagesRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return nil, errors.Errorf("unsupported role %q for messages endpoint", m.Role)
		}
	}

	var resp *anthropic.Message
	err := telemetry.WithSpan(ctx, "gateway.messages", func(ctx context.Context) error {
		r, err := c.anthropic.Messages.New(ctx, params)
		resp = r
		return err
	}, attribute.String("model", req.Model))
	if err != nil {
		return nil, errors.Wrap(err, "messages request failed")
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}

	return &ChatResponse{
		ID:           resp.ID,
		Model:        string(resp.Model),
		Content:      content.String(),
		FinishReason: string(resp.StopReason),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

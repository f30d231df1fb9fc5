package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewDefaults(t *testing.T) {
	client, err := New(WithAPIKey("test-key"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.BaseURL())
}

func TestWithBaseURLTrimsTrailingSlash(t *testing.T) {
	client, err := New(WithAPIKey("k"), WithBaseURL("https://gw.example.com/v1/"))
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com/v1", client.BaseURL())
	assert.Equal(t, "https://gw.example.com", client.anthropicBaseURL())
}

func TestFromEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-key")
	t.Setenv(BaseURLEnv, "https://self-hosted.example.com/v1")

	client, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://self-hosted.example.com/v1", client.BaseURL())
}

func TestFromEnvMissingKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	t.Setenv(BaseURLEnv, "")

	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFromEnvExplicitOptionsWin(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-key")

	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeChatResponse(w, "hi")
	}))
	defer ts.Close()

	client, err := FromEnv(WithAPIKey("explicit-key"), WithBaseURL(ts.URL))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), ChatRequest{
		Model:    "r9s-chat",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer explicit-key", gotAuth)
}

func TestModelFromEnv(t *testing.T) {
	t.Setenv(ModelEnv, "  r9s-chat  ")
	assert.Equal(t, "r9s-chat", ModelFromEnv())
}

func writeChatResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "r9s-chat",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": %q},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
	}`, content)
}

func TestChat(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		writeChatResponse(w, "hello there")
	}))
	defer ts.Close()

	client, err := New(WithAPIKey("k"), WithBaseURL(ts.URL))
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), ChatRequest{
		Model:       "r9s-chat",
		Messages:    []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "hi"}},
		MaxTokens:   128,
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "r9s-chat", gotBody["model"])
	assert.Len(t, gotBody["messages"], 2)
	assert.EqualValues(t, 128, gotBody["max_tokens"])

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)
}

func TestChatRequiresModel(t *testing.T) {
	client, err := New(WithAPIKey("k"))
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), ChatRequest{})
	assert.ErrorContains(t, err, "model is required")
}

func TestChatStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"r9s-chat","choices":[{"index":0,"delta":{"content":"hel"}}]}`,
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","model":"r9s-chat","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	client, err := New(WithAPIKey("k"), WithBaseURL(ts.URL))
	require.NoError(t, err)

	var deltas []string
	resp, err := client.ChatStream(context.Background(), ChatRequest{
		Model:    "r9s-chat",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(delta string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"hel", "lo"}, deltas)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "r9s-chat", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, resp.Usage)
}

func TestListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"id":"r9s-fast","object":"model","created":100,"owned_by":"r9s"},
			{"id":"r9s-chat","object":"model","created":200,"owned_by":"r9s"}
		]}`)
	}))
	defer ts.Close()

	client, err := New(WithAPIKey("k"), WithBaseURL(ts.URL))
	require.NoError(t, err)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "r9s-chat", models[0].ID)
	assert.Equal(t, "r9s-fast", models[1].ID)
	assert.Equal(t, "r9s", models[0].OwnedBy)
}

func TestMessages(t *testing.T) {
	var gotPath, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "r9s-sonnet",
			"content": [{"type": "text", "text": "hi there"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 5, "output_tokens": 2}
		}`)
	}))
	defer ts.Close()

	client, err := New(WithAPIKey("test-key"), WithBaseURL(ts.URL))
	require.NoError(t, err)

	resp, err := client.Messages(context.Background(), MessagesRequest{
		Model:  "r9s-sonnet",
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "yes?"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, resp.Usage)
}

func TestMessagesRejectsUnknownRole(t *testing.T) {
	client, err := New(WithAPIKey("k"))
	require.NoError(t, err)

	_, err = client.Messages(context.Background(), MessagesRequest{
		Model:    "r9s-sonnet",
		Messages: []Message{{Role: "tool", Content: "x"}},
	})
	assert.ErrorContains(t, err, `unsupported role "tool"`)
}

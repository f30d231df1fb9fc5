// Package gateway is a thin client for the hosted r9s gateway. The
// gateway speaks the OpenAI wire protocol for chat, completions, and
// model listing, and the Anthropic wire protocol on its messages
// endpoint; this package wraps both behind one configured client.
package gateway

import (
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is the hosted gateway endpoint.
	DefaultBaseURL = "https://api.r9s.ai/v1"

	// APIKeyEnv and BaseURLEnv configure FromEnv.
	APIKeyEnv  = "R9S_API_KEY"
	BaseURLEnv = "R9S_BASE_URL"
	// ModelEnv supplies a default model for CLI surfaces.
	ModelEnv = "R9S_MODEL"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("R9S_API_KEY is not set")

// Client talks to one gateway deployment.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	openai    *openai.Client
	anthropic anthropic.Client
}

// Option configures a Client.
type Option func(*Client) error

// WithAPIKey sets the bearer key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) error {
		if strings.TrimSpace(key) == "" {
			return errors.New("API key cannot be blank")
		}
		c.apiKey = strings.TrimSpace(key)
		return nil
	}
}

// WithBaseURL points the client at a different gateway deployment.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed == "" {
			return errors.New("base URL cannot be blank")
		}
		c.baseURL = strings.TrimRight(trimmed, "/")
		return nil
	}
}

// WithHTTPClient overrides the transport, e.g. for proxies or tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// New builds a client for DefaultBaseURL unless overridden. An API key
// is required.
func New(opts ...Option) (*Client, error) {
	c := &Client{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.openai = openai.NewClientWithConfig(cfg)

	anthropicOpts := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.anthropicBaseURL()),
	}
	if c.httpClient != nil {
		anthropicOpts = append(anthropicOpts, option.WithHTTPClient(c.httpClient))
	}
	c.anthropic = anthropic.NewClient(anthropicOpts...)

	return c, nil
}

// FromEnv builds a client from R9S_API_KEY and R9S_BASE_URL. Explicit
// options win over the environment.
func FromEnv(opts ...Option) (*Client, error) {
	var envOpts []Option
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		envOpts = append(envOpts, WithAPIKey(key))
	}
	if baseURL := strings.TrimSpace(os.Getenv(BaseURLEnv)); baseURL != "" {
		envOpts = append(envOpts, WithBaseURL(baseURL))
	}
	return New(append(envOpts, opts...)...)
}

// ModelFromEnv returns the default model configured via R9S_MODEL.
func ModelFromEnv() string {
	return strings.TrimSpace(os.Getenv(ModelEnv))
}

// BaseURL returns the configured gateway endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// anthropicBaseURL strips the OpenAI-style /v1 suffix: the Anthropic
// SDK appends /v1/messages itself.
func (c *Client) anthropicBaseURL() string {
	return strings.TrimSuffix(c.baseURL, "/v1")
}

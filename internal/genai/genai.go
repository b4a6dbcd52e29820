// Package genai wraps the OpenAI chat completion API for forwarding
// conversations to the health agent.

package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model override is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// ErrNoChoicesReturned is returned when the API produces an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ClientInterface defines the operations the rest of the service needs from
// a chat completion backend. Satisfied by Client and by MockClient in tests.
type ClientInterface interface {
	// GeneratePrompt generates a response from a system and a user prompt.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithMessages generates a response from a full message history.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// completionService is the minimal surface of the completions API, kept as
// an interface so tests can substitute a recorder.
type completionService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the client.
type Opts struct {
	// APIKey is the OpenAI API key. Falls back to OPENAI_API_KEY.
	APIKey string
	// Model overrides the default chat model.
	Model string
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client implements ClientInterface against the OpenAI API.
type Client struct {
	completions completionService
	model       string
}

var _ ClientInterface = (*Client)(nil)

// NewClient initializes a client, falling back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.APIKey != "" {
			slog.Debug("genai.NewClient loaded API key from environment")
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient created client", "model", cfg.Model)
	return &Client{completions: &cli.Chat.Completions, model: cfg.Model}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// GenerateWithMessages generates a response from a full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai completion failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// MockClient is a fake ClientInterface for tests. It returns queued
// responses in order, or Err when set.
type MockClient struct {
	Responses []string
	Err       error

	// Calls records the message histories passed in.
	Calls [][]openai.ChatCompletionMessageParamUnion

	next int
}

var _ ClientInterface = (*MockClient)(nil)

func (m *MockClient) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

func (m *MockClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	if m.next >= len(m.Responses) {
		return "", fmt.Errorf("no queued response")
	}
	resp := m.Responses[m.next]
	m.next++
	return resp, nil
}

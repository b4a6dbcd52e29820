package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockCompletionService implements completionService for testing.
type mockCompletionService struct {
	resp openai.ChatCompletion
	err  error

	gotParams openai.ChatCompletionNewParams
}

func (m *mockCompletionService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.gotParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &m.resp, nil
}

func TestGeneratePrompt_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	svc := &mockCompletionService{resp: mockResp}
	client := &Client{completions: svc, model: DefaultModel}
	out, err := client.GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(svc.gotParams.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(svc.gotParams.Messages))
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{completions: &mockCompletionService{err: errors.New("service failure")}, model: DefaultModel}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{completions: &mockCompletionService{resp: mockResp}, model: DefaultModel}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}

func TestMockClient_QueueAndError(t *testing.T) {
	mock := &MockClient{Responses: []string{"first", "second"}}
	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		got, err := mock.GeneratePrompt(ctx, "sys", "usr")
		if err != nil {
			t.Fatalf("GeneratePrompt: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if _, err := mock.GeneratePrompt(ctx, "sys", "usr"); err == nil {
		t.Error("expected error once queue drained")
	}
	if len(mock.Calls) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(mock.Calls))
	}
}

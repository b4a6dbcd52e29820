package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jalliet/UM-GemiFish/internal/genai"
	"github.com/jalliet/UM-GemiFish/internal/models"
)

func namedRecord(name string) *models.ContactRecord {
	rec := models.NewContactRecord("whatsapp:+15552000")
	rec.Profile[models.ProfileFieldName] = name
	return rec
}

func TestRuleBasedResponderCategories(t *testing.T) {
	r := &RuleBasedResponder{}
	rec := namedRecord("Alex")
	ctx := context.Background()
	cases := []struct {
		input string
		want  string
	}{
		{"hello doctor", "Hello Alex! How can I help you with your health today?"},
		{"my knee hurts", "I understand you're experiencing pain. Can you describe where it hurts and how long you've been feeling this way?"},
		{"what can you do", "I'm here to help with your health concerns. You can describe symptoms, send images, or ask health-related questions."},
		{"I slept badly", "Thank you for sharing that, Alex. Can you provide more details about your concern?"},
	}
	for _, tc := range cases {
		got, err := r.Respond(ctx, rec, tc.input)
		if err != nil {
			t.Fatalf("Respond(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("Respond(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestRuleBasedResponderUnknownName(t *testing.T) {
	r := &RuleBasedResponder{}
	rec := models.NewContactRecord("whatsapp:+15552000")
	got, err := r.Respond(context.Background(), rec, "hello")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(got, "Hello there!") {
		t.Errorf("unknown name should default to 'there', got %q", got)
	}
}

func TestAgentResponderForwardsContext(t *testing.T) {
	mock := &genai.MockClient{Responses: []string{"rest and elevate the knee"}}
	rec := namedRecord("Alex")
	rec.Profile[models.ProfileFieldConcern] = "knee pain"
	rec.ExtendedData = map[string]string{"allergies": "penicillin"}

	a := NewAgentResponder(mock)
	got, err := a.Respond(context.Background(), rec, "it still hurts")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "rest and elevate the knee" {
		t.Errorf("reply = %q", got)
	}
	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 forward, got %d", len(mock.Calls))
	}
}

func TestAgentResponderUnavailable(t *testing.T) {
	mock := &genai.MockClient{Err: errors.New("connection refused")}
	a := NewAgentResponder(mock)
	_, err := a.Respond(context.Background(), namedRecord("Alex"), "hello")
	if !errors.Is(err, ErrAgentUnavailable) {
		t.Errorf("expected ErrAgentUnavailable, got %v", err)
	}
}

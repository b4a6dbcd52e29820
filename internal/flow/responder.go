package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jalliet/UM-GemiFish/internal/genai"
	"github.com/jalliet/UM-GemiFish/internal/models"
)

// ErrAgentUnavailable reports that the conversational agent could not be
// reached. The router substitutes a safe fallback reply for it.
var ErrAgentUnavailable = errors.New("agent unavailable")

// Responder produces reply text for a contact and a post-triage text input.
//
// Implementations receive the full contact record so replies can be
// personalized with the stored profile.
type Responder interface {
	Respond(ctx context.Context, rec *models.ContactRecord, text string) (string, error)
}

// RuleBasedResponder matches the input against a small fixed set of keyword
// categories with literal replies. It never fails.
type RuleBasedResponder struct{}

var _ Responder = (*RuleBasedResponder)(nil)

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Respond implements Responder.
func (r *RuleBasedResponder) Respond(ctx context.Context, rec *models.ContactRecord, text string) (string, error) {
	name := rec.Name("there")
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "hello", "hi", "hey"):
		return fmt.Sprintf("Hello %s! How can I help you with your health today?", name), nil
	case containsAny(lower, "pain", "hurt", "ache"):
		return "I understand you're experiencing pain. Can you describe where it hurts and how long you've been feeling this way?", nil
	case containsAny(lower, "help", "what", "how"):
		return "I'm here to help with your health concerns. You can describe symptoms, send images, or ask health-related questions.", nil
	default:
		return fmt.Sprintf("Thank you for sharing that, %s. Can you provide more details about your concern?", name), nil
	}
}

// AgentResponder forwards the input to the conversational agent, keyed by the
// contact's stable conversation reference and carrying the stored profile and
// extended data as context.
type AgentResponder struct {
	client genai.ClientInterface
}

var _ Responder = (*AgentResponder)(nil)

// NewAgentResponder creates a responder forwarding to the given agent client.
func NewAgentResponder(client genai.ClientInterface) *AgentResponder {
	return &AgentResponder{client: client}
}

const agentSystemPrompt = "You are a caring health intake assistant for a WhatsApp health service. " +
	"Answer in short, plain messages suitable for chat. Never provide a diagnosis; " +
	"encourage the user to consult a clinician for anything serious."

// contextBlock renders the contact's known facts as lines appended to the
// system prompt, so every forward carries the same session context.
func contextBlock(rec *models.ContactRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\nSession: %s", rec.ConversationRef)
	fields := make([]string, 0, len(rec.Profile))
	for k, v := range rec.Profile {
		if v != "" {
			fields = append(fields, fmt.Sprintf("%s: %s", k, v))
		}
	}
	sort.Strings(fields)
	if len(fields) > 0 {
		fmt.Fprintf(&b, "\nPatient profile: %s", strings.Join(fields, ", "))
	}
	extra := make([]string, 0, len(rec.ExtendedData))
	for k, v := range rec.ExtendedData {
		extra = append(extra, fmt.Sprintf("%s: %s", k, v))
	}
	sort.Strings(extra)
	if len(extra) > 0 {
		fmt.Fprintf(&b, "\nAdditional health data: %s", strings.Join(extra, ", "))
	}
	return b.String()
}

// Respond implements Responder. A forwarding failure is reported as
// ErrAgentUnavailable; the reply decision stays with the caller.
func (a *AgentResponder) Respond(ctx context.Context, rec *models.ContactRecord, text string) (string, error) {
	reply, err := a.client.GeneratePrompt(ctx, agentSystemPrompt+contextBlock(rec), text)
	if err != nil {
		slog.Error("agent forwarding failed", "conversation_ref", rec.ConversationRef, "error", err)
		return "", fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	return reply, nil
}

package flow

import (
	"testing"

	"github.com/jalliet/UM-GemiFish/internal/models"
)

func TestTriageQuestionFirstStep(t *testing.T) {
	rec := models.NewContactRecord("whatsapp:+15551000")
	got := triageQuestion(rec)
	want := "Hi! Welcome to our health service. What's your name?"
	if got != want {
		t.Errorf("triageQuestion = %q, want %q", got, want)
	}
}

func TestAdvanceTriageWritesFieldsInOrder(t *testing.T) {
	rec := models.NewContactRecord("whatsapp:+15551000")
	answers := []struct {
		answer string
		field  string
	}{
		{"Alex", models.ProfileFieldName},
		{"34", models.ProfileFieldAge},
		{"Nairobi", models.ProfileFieldLocation},
		{"knee pain", models.ProfileFieldConcern},
	}
	for i, tc := range answers {
		advanceTriage(rec, tc.answer)
		if rec.Profile[tc.field] != tc.answer {
			t.Errorf("step %d: profile[%s] = %q, want %q", i, tc.field, rec.Profile[tc.field], tc.answer)
		}
		if rec.TriageStep != i+1 {
			t.Errorf("step %d: cursor = %d, want %d", i, rec.TriageStep, i+1)
		}
	}
	if !rec.TriageCompleted {
		t.Error("triage should be completed after the last answer")
	}
}

func TestAdvanceTriagePersonalizesSecondQuestion(t *testing.T) {
	rec := models.NewContactRecord("whatsapp:+15551000")
	advanceTriage(rec, "Alex")
	got := triageReply(rec)
	want := "Hi Alex! What's your age?"
	if got != want {
		t.Errorf("triageReply = %q, want %q", got, want)
	}
}

func TestAdvanceTriagePastEndIsNoOp(t *testing.T) {
	rec := models.NewContactRecord("whatsapp:+15551000")
	for _, a := range []string{"a", "b", "c", "d"} {
		advanceTriage(rec, a)
	}
	advanceTriage(rec, "extra")
	if rec.TriageStep != len(triageSteps) {
		t.Errorf("cursor = %d, want %d", rec.TriageStep, len(triageSteps))
	}
}

func TestTriageCompletionMessage(t *testing.T) {
	rec := models.NewContactRecord("whatsapp:+15551000")
	for _, a := range []string{"Alex", "34", "Nairobi", "knee pain"} {
		advanceTriage(rec, a)
	}
	got := triageReply(rec)
	want := "Thank you Alex! Your profile is complete. You can now send me images or ask health-related questions."
	if got != want {
		t.Errorf("triageReply = %q, want %q", got, want)
	}
}

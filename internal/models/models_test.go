package models

import (
	"testing"
	"time"
)

func TestNewContactRecordDefaults(t *testing.T) {
	rec := NewContactRecord("whatsapp:+447480556916")
	if rec.ContactID != "whatsapp:+447480556916" {
		t.Errorf("unexpected contact ID: %s", rec.ContactID)
	}
	if rec.TriageCompleted {
		t.Error("new record must not have triage completed")
	}
	if rec.TriageStep != 0 {
		t.Errorf("expected triage step 0, got %d", rec.TriageStep)
	}
	if len(rec.Messages) != 0 {
		t.Errorf("expected empty message history, got %d entries", len(rec.Messages))
	}
	if rec.ConversationRef == "" {
		t.Error("expected conversation reference to be set")
	}
	for _, field := range []string{ProfileFieldName, ProfileFieldAge, ProfileFieldLocation, ProfileFieldConcern} {
		if v, ok := rec.Profile[field]; !ok || v != "" {
			t.Errorf("profile field %s should exist and be empty, got %q (present=%v)", field, v, ok)
		}
	}
}

func TestConversationRefStable(t *testing.T) {
	a := NewContactRecord("1")
	b := NewContactRecord("2")
	if a.ConversationRef == b.ConversationRef {
		t.Error("distinct records must get distinct conversation references")
	}
}

func TestName(t *testing.T) {
	rec := NewContactRecord("1")
	if got := rec.Name("there"); got != "there" {
		t.Errorf("expected fallback name, got %q", got)
	}
	rec.Profile[ProfileFieldName] = "Alex"
	if got := rec.Name("there"); got != "Alex" {
		t.Errorf("expected Alex, got %q", got)
	}
	var nilRec *ContactRecord
	if got := nilRec.Name("there"); got != "there" {
		t.Errorf("nil record should use fallback, got %q", got)
	}
}

func TestAppendMessagePreservesOrder(t *testing.T) {
	rec := NewContactRecord("1")
	for _, body := range []string{"first", "second", "third"} {
		rec.AppendMessage(MessageEntry{Timestamp: time.Now(), Kind: MessageKindText, Content: body})
	}
	if len(rec.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(rec.Messages))
	}
	if rec.Messages[0].Content != "first" || rec.Messages[2].Content != "third" {
		t.Error("messages not stored in arrival order")
	}
}

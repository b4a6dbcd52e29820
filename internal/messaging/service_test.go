package messaging

import (
	"context"
	"testing"

	"github.com/jalliet/UM-GemiFish/internal/models"
	"github.com/jalliet/UM-GemiFish/internal/twiliowhatsapp"
	"github.com/jalliet/UM-GemiFish/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+15551234567", "15551234567", false},
		{"whatsapp:+15551234567", "15551234567", false},
		{"15551234567", "15551234567", false},
		{"", "", true},
		{"abc", "", true},
		{"+1-23", "", true},
	}
	for _, tc := range cases {
		got, err := canonicalizeRecipient(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("canonicalizeRecipient(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizeRecipient(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizeRecipient(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTwilioServiceSendCanonicalizes(t *testing.T) {
	mock := &twiliowhatsapp.MockClient{}
	svc := NewTwilioService(mock)
	if err := svc.SendMessage(context.Background(), "whatsapp:+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].To != "15551234567" {
		t.Errorf("sent = %+v", mock.SentMessages)
	}
	if err := svc.SendMessage(context.Background(), "", "hello"); err == nil {
		t.Error("expected error for empty recipient")
	}
}

type recordingRouter struct {
	events  []models.InboundEvent
	replies []string
}

func (r *recordingRouter) Handle(ctx context.Context, event models.InboundEvent) (string, error) {
	r.events = append(r.events, event)
	reply := "ack"
	if len(r.replies) > 0 {
		reply = r.replies[0]
		r.replies = r.replies[1:]
	}
	return reply, nil
}

func textMessageEvent(sender, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID(sender, types.DefaultUserServer),
			},
		},
		Message: &waE2E.Message{Conversation: &text},
	}
}

func TestWhatsAppServiceRoutesInboundMessage(t *testing.T) {
	mock := whatsapp.NewMockClient()
	router := &recordingRouter{replies: []string{"Hi! Welcome to our health service. What's your name?"}}
	svc := NewWhatsAppService(mock, router)

	svc.handleIncomingMessage(context.Background(), textMessageEvent("15551234567", "hello"))

	if len(router.events) != 1 {
		t.Fatalf("expected 1 routed event, got %d", len(router.events))
	}
	ev := router.events[0]
	if ev.From != "whatsapp:+15551234567" || ev.Body != "hello" {
		t.Errorf("event = %+v", ev)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(mock.Sent))
	}
	if mock.Sent[0].To != "15551234567" || mock.Sent[0].Body != "Hi! Welcome to our health service. What's your name?" {
		t.Errorf("reply = %+v", mock.Sent[0])
	}
}

func TestWhatsAppServiceSkipsNonText(t *testing.T) {
	mock := whatsapp.NewMockClient()
	router := &recordingRouter{}
	svc := NewWhatsAppService(mock, router)

	svc.handleIncomingMessage(context.Background(), &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID("15551234567", types.DefaultUserServer),
			},
		},
		Message: &waE2E.Message{},
	})

	if len(router.events) != 0 || len(mock.Sent) != 0 {
		t.Errorf("non-text message should be skipped: events=%d sent=%d", len(router.events), len(mock.Sent))
	}
}

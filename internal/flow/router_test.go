package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jalliet/UM-GemiFish/internal/media"
	"github.com/jalliet/UM-GemiFish/internal/models"
	"github.com/jalliet/UM-GemiFish/internal/store"
	"github.com/jalliet/UM-GemiFish/internal/twiliowhatsapp"
)

func newTestRouter(t *testing.T, responder Responder) (*Router, store.Store, *twiliowhatsapp.MockClient) {
	t.Helper()
	st, err := store.NewStore(store.WithFileDir(t.TempDir()), store.WithUploadsDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	mock := &twiliowhatsapp.MockClient{Media: map[string][]byte{}}
	ing := media.NewIngester(mock, st, t.TempDir())
	if responder == nil {
		responder = &RuleBasedResponder{}
	}
	return NewRouter(st, ing, responder), st, mock
}

func textEvent(from, body string) models.InboundEvent {
	return models.InboundEvent{From: from, Body: body}
}

func TestRouterFullTriageScenario(t *testing.T) {
	r, st, _ := newTestRouter(t, nil)
	ctx := context.Background()
	const contact = "whatsapp:+254700000001"

	steps := []struct {
		body string
		want string
	}{
		{"", "Hi! Welcome to our health service. What's your name?"},
		{"Alex", "Hi Alex! What's your age?"},
		{"34", "What's your location/city?"},
		{"Nairobi", "What brings you here today? Please describe your main health concern."},
		{"knee pain", "Thank you Alex! Your profile is complete. You can now send me images or ask health-related questions."},
	}
	for i, s := range steps {
		got, err := r.Handle(ctx, textEvent(contact, s.body))
		if err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
		if got != s.want {
			t.Errorf("message %d: reply = %q, want %q", i+1, got, s.want)
		}
	}

	rec, err := st.Load(contact)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.TriageCompleted {
		t.Error("triage should be completed")
	}
	wantProfile := map[string]string{
		models.ProfileFieldName:     "Alex",
		models.ProfileFieldAge:      "34",
		models.ProfileFieldLocation: "Nairobi",
		models.ProfileFieldConcern:  "knee pain",
	}
	for field, want := range wantProfile {
		if rec.Profile[field] != want {
			t.Errorf("profile[%s] = %q, want %q", field, rec.Profile[field], want)
		}
	}
	// The bootstrap event is not recorded, so only the four answers remain.
	if len(rec.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(rec.Messages))
	}
	for i, want := range []string{"Alex", "34", "Nairobi", "knee pain"} {
		if rec.Messages[i].Kind != models.MessageKindText || rec.Messages[i].Content != want {
			t.Errorf("message %d = %+v, want text %q", i, rec.Messages[i], want)
		}
	}
}

func TestRouterBootstrapCreatesRecord(t *testing.T) {
	r, st, _ := newTestRouter(t, nil)
	reply, err := r.Handle(context.Background(), textEvent("whatsapp:+15553000", "hello"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "Hi! Welcome to our health service. What's your name?" {
		t.Errorf("reply = %q", reply)
	}
	rec, err := st.Load("whatsapp:+15553000")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.TriageStep != 0 || rec.TriageCompleted {
		t.Errorf("record should start at step 0, got step=%d completed=%v", rec.TriageStep, rec.TriageCompleted)
	}
	if len(rec.Messages) != 0 {
		t.Errorf("bootstrap should record no message, got %d", len(rec.Messages))
	}
}

func TestRouterEmptyTriageInputDoesNotAdvance(t *testing.T) {
	r, st, _ := newTestRouter(t, nil)
	ctx := context.Background()
	const contact = "whatsapp:+15553001"
	if _, err := r.Handle(ctx, textEvent(contact, "")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	reply, err := r.Handle(ctx, textEvent(contact, "   "))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != triageRepromptMessage {
		t.Errorf("reply = %q, want re-prompt", reply)
	}
	rec, _ := st.Load(contact)
	if rec.TriageStep != 0 {
		t.Errorf("step advanced on empty input: %d", rec.TriageStep)
	}
	for _, v := range rec.Profile {
		if v != "" {
			t.Errorf("profile mutated on empty input: %v", rec.Profile)
		}
	}
	if len(rec.Messages) != 0 {
		t.Errorf("empty input should not be recorded, got %d messages", len(rec.Messages))
	}
}

func TestRouterMediaDuringTriage(t *testing.T) {
	r, st, mock := newTestRouter(t, nil)
	mock.Media["https://media.example/x"] = []byte("img")
	ctx := context.Background()
	const contact = "whatsapp:+15553002"
	if _, err := r.Handle(ctx, textEvent(contact, "")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Media with accompanying text: the text is the answer, the media dropped.
	ev := models.InboundEvent{From: contact, Body: "Alex", MediaURL: "https://media.example/x", MediaContentType: "image/jpeg"}
	reply, err := r.Handle(ctx, ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "Hi Alex! What's your age?" {
		t.Errorf("reply = %q", reply)
	}
	rec, _ := st.Load(contact)
	if rec.TriageStep != 1 {
		t.Errorf("step = %d, want 1", rec.TriageStep)
	}
	for _, m := range rec.Messages {
		if m.Kind == models.MessageKindImage {
			t.Error("triage media must not be ingested")
		}
	}

	// Media without text re-prompts and mutates nothing.
	ev.Body = ""
	reply, err = r.Handle(ctx, ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != triageRepromptMessage {
		t.Errorf("reply = %q, want re-prompt", reply)
	}
	rec, _ = st.Load(contact)
	if rec.TriageStep != 1 || len(rec.Messages) != 1 {
		t.Errorf("media-only triage event mutated record: step=%d messages=%d", rec.TriageStep, len(rec.Messages))
	}
}

func completeTriage(t *testing.T, r *Router, contact string) {
	t.Helper()
	ctx := context.Background()
	for _, body := range []string{"", "Alex", "34", "Nairobi", "knee pain"} {
		if _, err := r.Handle(ctx, textEvent(contact, body)); err != nil {
			t.Fatalf("triage setup: %v", err)
		}
	}
}

func TestRouterPostTriageMedia(t *testing.T) {
	r, st, mock := newTestRouter(t, nil)
	mock.Media["https://media.example/knee"] = []byte("jpeg")
	const contact = "whatsapp:+15553003"
	completeTriage(t, r, contact)

	ev := models.InboundEvent{From: contact, Body: "swollen knee", MediaURL: "https://media.example/knee", MediaContentType: "image/jpeg"}
	reply, err := r.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := "Thank you Alex! I've received your image (swollen knee). Can you describe what you're showing me?"
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
	rec, _ := st.Load(contact)
	last := rec.Messages[len(rec.Messages)-1]
	if last.Kind != models.MessageKindImage || last.StoredFilename != "swollen knee.jpg" {
		t.Errorf("last message = %+v", last)
	}
}

func TestRouterUnsupportedMediaReply(t *testing.T) {
	r, st, _ := newTestRouter(t, nil)
	const contact = "whatsapp:+15553004"
	completeTriage(t, r, contact)

	ev := models.InboundEvent{From: contact, MediaURL: "https://media.example/doc", MediaContentType: "application/pdf"}
	reply, err := r.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(reply, `"application/pdf"`) || !strings.Contains(reply, "not supported") {
		t.Errorf("reply = %q", reply)
	}
	rec, _ := st.Load(contact)
	if len(rec.Messages) != 4 {
		t.Errorf("rejected media should not be recorded, got %d messages", len(rec.Messages))
	}
}

func TestRouterMediaRetrievalFailureReply(t *testing.T) {
	r, _, mock := newTestRouter(t, nil)
	const contact = "whatsapp:+15553005"
	completeTriage(t, r, contact)
	mock.FetchErr = errors.New("401 unauthorized")

	ev := models.InboundEvent{From: contact, MediaURL: "https://media.example/x", MediaContentType: "image/png"}
	reply, err := r.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != mediaRetrievalReply {
		t.Errorf("reply = %q", reply)
	}
	if strings.Contains(reply, "401") {
		t.Errorf("reply leaks internal detail: %q", reply)
	}
}

func TestRouterPostTriageTextAndFallback(t *testing.T) {
	r, st, _ := newTestRouter(t, nil)
	const contact = "whatsapp:+15553006"
	completeTriage(t, r, contact)
	ctx := context.Background()

	reply, err := r.Handle(ctx, textEvent(contact, "hello"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "Hello Alex! How can I help you with your health today?" {
		t.Errorf("reply = %q", reply)
	}
	rec, _ := st.Load(contact)
	if len(rec.Messages) != 5 {
		t.Errorf("expected 5 messages, got %d", len(rec.Messages))
	}

	reply, err = r.Handle(ctx, textEvent(contact, ""))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != fallbackPrompt {
		t.Errorf("reply = %q, want fallback", reply)
	}
}

type failingResponder struct{}

func (failingResponder) Respond(ctx context.Context, rec *models.ContactRecord, text string) (string, error) {
	return "", ErrAgentUnavailable
}

func TestRouterAgentUnavailableFallback(t *testing.T) {
	r, st, _ := newTestRouter(t, failingResponder{})
	const contact = "whatsapp:+15553007"
	completeTriage(t, r, contact)

	reply, err := r.Handle(context.Background(), textEvent(contact, "is this serious?"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != agentUnavailableReply {
		t.Errorf("reply = %q", reply)
	}
	// The message is still recorded even when the agent is down.
	rec, _ := st.Load(contact)
	if rec.Messages[len(rec.Messages)-1].Content != "is this serious?" {
		t.Errorf("message not recorded: %+v", rec.Messages)
	}
}

func TestRouterConcurrentTriageAnswersNoLostUpdate(t *testing.T) {
	r, st, _ := newTestRouter(t, nil)
	ctx := context.Background()
	const contact = "whatsapp:+15553008"
	if _, err := r.Handle(ctx, textEvent(contact, "")); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	var wg sync.WaitGroup
	answers := []string{"Alex", "34", "Nairobi", "knee pain"}
	for _, a := range answers {
		wg.Add(1)
		go func(body string) {
			defer wg.Done()
			if _, err := r.Handle(ctx, textEvent(contact, body)); err != nil {
				t.Errorf("Handle(%q): %v", body, err)
			}
		}(a)
	}
	wg.Wait()

	rec, err := st.Load(contact)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.TriageStep != len(answers) {
		t.Errorf("step = %d, want %d (lost update)", rec.TriageStep, len(answers))
	}
	if !rec.TriageCompleted {
		t.Error("triage should be completed")
	}
	if len(rec.Messages) != len(answers) {
		t.Errorf("messages = %d, want %d", len(rec.Messages), len(answers))
	}
}

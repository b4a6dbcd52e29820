package twiliowhatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	os.Unsetenv("TWILIO_ACCOUNT_SID")
	os.Unsetenv("TWILIO_AUTH_TOKEN")
	os.Unsetenv("TWILIO_FROM_NUMBER")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when credentials are missing")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret")); err == nil {
		t.Error("expected error when from number is missing")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("whatsapp:+15551234567")); err != nil {
		t.Errorf("expected client with full options, got error: %v", err)
	}
}

func TestFetchMediaBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("whatsapp:+15551234567"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	data, err := c.FetchMedia(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchMedia failed: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("unexpected body: %q", data)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Error("request did not carry basic auth credentials")
	}
}

func TestFetchMediaNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("wrong"), WithFromWhats("whatsapp:+15551234567"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.FetchMedia(context.Background(), srv.URL); err == nil {
		t.Error("expected error for non-success status")
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	m.Media["https://api.twilio.example/media/1"] = []byte("png")

	if err := m.SendMessage(context.Background(), "15551234567", "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(m.SentMessages) != 1 || m.SentMessages[0].Body != "hi" {
		t.Error("sent message not recorded")
	}

	data, err := m.FetchMedia(context.Background(), "https://api.twilio.example/media/1")
	if err != nil || string(data) != "png" {
		t.Errorf("unexpected media fetch result: %q, %v", data, err)
	}
	if _, err := m.FetchMedia(context.Background(), "https://api.twilio.example/media/missing"); err == nil {
		t.Error("expected error for unknown media URL")
	}
}

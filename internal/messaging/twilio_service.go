package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jalliet/UM-GemiFish/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio REST API. Inbound
// traffic arrives through the webhook, so Start has nothing to pump.
type TwilioService struct {
	client twiliowhatsapp.Sender

	mu      sync.Mutex
	stopped bool
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService around a Twilio sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient validates a WhatsApp phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizeRecipient(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendMessage sends a message through the Twilio client.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// Start is a no-op: Twilio inbound traffic arrives via the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop marks the service stopped.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	slog.Info("TwilioService stopped")
	return nil
}

package messaging

import (
	"context"
	"log/slog"

	"github.com/jalliet/UM-GemiFish/internal/models"
	"github.com/jalliet/UM-GemiFish/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// Router is the conversation entry point the service feeds inbound events
// into. Satisfied by flow.Router.
type Router interface {
	Handle(ctx context.Context, event models.InboundEvent) (string, error)
}

// WhatsAppService implements Service using the whatsmeow-based client. It is
// the alternate entry point: inbound messages on the direct session go
// through the same conversation router as webhook traffic, and the reply is
// sent back over the session.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // nil for mocks; enables event handling
	router   Router
	done     chan struct{}
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService feeding inbound messages into
// the given router.
func NewWhatsAppService(client whatsapp.WhatsAppSender, router Router) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		router: router,
		done:   make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient validates a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// SendMessage sends a message over the WhatsApp session.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// Start registers the inbound event handler when a full client is available.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, msg)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

// handleIncomingMessage routes one inbound session message and replies over
// the same session. Non-text messages are skipped: media arrives with
// authenticated URLs only on the webhook channel.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	from := "whatsapp:+" + evt.Info.Sender.User
	reply, err := s.router.Handle(ctx, models.InboundEvent{From: from, Body: text})
	if err != nil {
		slog.Error("WhatsAppService routing failed", "from", from, "error", err)
		return
	}
	if err := s.client.SendMessage(ctx, evt.Info.Sender.User, reply); err != nil {
		slog.Error("WhatsAppService reply failed", "from", from, "error", err)
	}
}

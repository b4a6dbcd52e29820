package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jalliet/UM-GemiFish/internal/media"
	"github.com/jalliet/UM-GemiFish/internal/models"
	"github.com/jalliet/UM-GemiFish/internal/store"
)

// Replies for events the router recovers on its own. None of these expose
// internal error detail to the contact.
const (
	fallbackPrompt         = "Hello! Send me an image or describe your health concern."
	mediaRetrievalReply    = "Sorry, there was an authentication error accessing your image."
	mediaStorageReply      = "Sorry, there was an error processing your image."
	agentUnavailableReply  = "Sorry, I'm having trouble responding right now. Please try again in a moment."
	imageReceivedTemplate  = "Thank you %s! I've received your image (%s). Can you describe what you're showing me?"
	unsupportedMediaFormat = "The file type %q is not supported. Please send JPEG, PNG, or GIF images."
)

// MediaIngester is the slice of the media pipeline the router drives.
// Satisfied by media.Ingester.
type MediaIngester interface {
	Ingest(ctx context.Context, contactID, mediaURL, contentType, caption string) (string, *models.ContactRecord, error)
}

// Router is the single entry point for one inbound event. It decides between
// new-contact bootstrap, triage continuation, media ingestion, and responder
// delegation, and always produces a reply string. The only errors it returns
// are persistence failures; every conversational failure is recovered into
// the reply.
type Router struct {
	store     store.Store
	ingester  MediaIngester
	responder Responder
}

// NewRouter wires a router from its collaborators.
func NewRouter(st store.Store, ingester MediaIngester, responder Responder) *Router {
	return &Router{store: st, ingester: ingester, responder: responder}
}

// Handle processes one inbound event and returns the reply text.
func (r *Router) Handle(ctx context.Context, event models.InboundEvent) (string, error) {
	body := strings.TrimSpace(event.Body)

	exists, err := r.store.Exists(event.From)
	if err != nil {
		return "", fmt.Errorf("failed to check contact: %w", err)
	}
	if !exists {
		rec, err := r.store.Create(event.From)
		if err != nil {
			// A concurrent event may have created the contact first.
			if errors.Is(err, models.ErrContactExists) {
				return r.handleExisting(ctx, event, body)
			}
			return "", fmt.Errorf("failed to create contact: %w", err)
		}
		slog.Info("new contact bootstrapped", "contact_id", event.From)
		// The bootstrap event itself is not recorded in the history.
		return triageQuestion(rec), nil
	}
	return r.handleExisting(ctx, event, body)
}

func (r *Router) handleExisting(ctx context.Context, event models.InboundEvent, body string) (string, error) {
	rec, err := r.store.Load(event.From)
	if err != nil {
		return "", fmt.Errorf("failed to load contact: %w", err)
	}

	if !rec.TriageCompleted {
		return r.handleTriage(event, body)
	}

	if event.HasMedia() {
		return r.handleMedia(ctx, event, body)
	}
	if body != "" {
		return r.handleText(ctx, event, body)
	}
	slog.Debug("empty post-triage event", "contact_id", event.From)
	return fallbackPrompt, nil
}

// handleTriage advances the questionnaire on non-empty text and re-prompts
// otherwise. Media arriving mid-triage is dropped without a history entry.
func (r *Router) handleTriage(event models.InboundEvent, body string) (string, error) {
	if event.HasMedia() {
		slog.Debug("media dropped during triage", "contact_id", event.From)
	}
	if body == "" {
		return triageRepromptMessage, nil
	}
	rec, err := r.store.Update(event.From, func(rec *models.ContactRecord) error {
		advanceTriage(rec, body)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to advance triage: %w", err)
	}
	if _, err := r.store.AppendMessage(event.From, textEntry(body)); err != nil {
		return "", fmt.Errorf("failed to record triage answer: %w", err)
	}
	slog.Info("triage advanced", "contact_id", event.From, "step", rec.TriageStep, "completed", rec.TriageCompleted)
	return triageReply(rec), nil
}

// handleMedia drives the ingestion pipeline and converts its typed failures
// into user-facing replies.
func (r *Router) handleMedia(ctx context.Context, event models.InboundEvent, caption string) (string, error) {
	filename, rec, err := r.ingester.Ingest(ctx, event.From, event.MediaURL, event.MediaContentType, caption)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrUnsupportedMediaType):
		return fmt.Sprintf(unsupportedMediaFormat, event.MediaContentType), nil
	case errors.Is(err, media.ErrRetrievalFailed):
		return mediaRetrievalReply, nil
	case errors.Is(err, media.ErrStorageFailed):
		return mediaStorageReply, nil
	default:
		return "", fmt.Errorf("failed to ingest media: %w", err)
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return fmt.Sprintf(imageReceivedTemplate, rec.Name("there"), base), nil
}

// handleText records the message and delegates to the responder, falling
// back to a safe reply when the agent is unavailable.
func (r *Router) handleText(ctx context.Context, event models.InboundEvent, body string) (string, error) {
	rec, err := r.store.AppendMessage(event.From, textEntry(body))
	if err != nil {
		return "", fmt.Errorf("failed to record message: %w", err)
	}
	reply, err := r.responder.Respond(ctx, rec, body)
	if err != nil {
		if errors.Is(err, ErrAgentUnavailable) {
			return agentUnavailableReply, nil
		}
		slog.Error("responder failed", "contact_id", event.From, "error", err)
		return agentUnavailableReply, nil
	}
	return reply, nil
}

func textEntry(body string) models.MessageEntry {
	return models.MessageEntry{
		Timestamp: time.Now().UTC(),
		Kind:      models.MessageKindText,
		Content:   body,
	}
}

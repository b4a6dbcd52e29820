// Package models defines the core data structures for GemiFish.
//
// It includes the per-contact record, its message history entries, and the
// inbound event shape shared across modules.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageKind defines the kind of an entry in a contact's message history.
type MessageKind string

const (
	// MessageKindText is a plain text message.
	MessageKindText MessageKind = "text"
	// MessageKindImage is an image message with a stored media file.
	MessageKindImage MessageKind = "image"
)

// Profile field names collected by the triage questionnaire, in order.
const (
	ProfileFieldName     = "name"
	ProfileFieldAge      = "age"
	ProfileFieldLocation = "location"
	ProfileFieldConcern  = "concern"
)

// Error variables for better error handling and testability
var (
	ErrContactNotFound = errors.New("contact not found")
	ErrContactExists   = errors.New("contact already exists")
	ErrEmptyContactID  = errors.New("contact identifier cannot be empty")
)

// MessageEntry is one message in a contact's history. Entries are immutable
// once appended and are never reordered or truncated.
type MessageEntry struct {
	Timestamp        time.Time   `json:"timestamp"`
	Kind             MessageKind `json:"kind"`
	Content          string      `json:"content"`
	MediaRef         string      `json:"media_ref,omitempty"`
	MediaContentType string      `json:"media_content_type,omitempty"`
	StoredFilename   string      `json:"stored_filename,omitempty"`
}

// ContactRecord is the durable per-contact state. One record exists per
// normalized contact identifier.
type ContactRecord struct {
	ContactID       string            `json:"contact_id"`
	CreatedAt       time.Time         `json:"created_at"`
	Profile         map[string]string `json:"profile"`
	TriageCompleted bool              `json:"triage_completed"`
	TriageStep      int               `json:"triage_step"`
	Messages        []MessageEntry    `json:"messages"`
	ConversationRef string            `json:"conversation_ref"`
	ExtendedData    map[string]string `json:"extended_data,omitempty"`
}

// NewContactRecord allocates a record with default values: an empty profile,
// triage at step zero, no messages, and a fresh conversation reference that
// stays stable for the record's lifetime.
func NewContactRecord(contactID string) *ContactRecord {
	return &ContactRecord{
		ContactID: contactID,
		CreatedAt: time.Now().UTC(),
		Profile: map[string]string{
			ProfileFieldName:     "",
			ProfileFieldAge:      "",
			ProfileFieldLocation: "",
			ProfileFieldConcern:  "",
		},
		TriageCompleted: false,
		TriageStep:      0,
		Messages:        []MessageEntry{},
		ConversationRef: uuid.NewString(),
	}
}

// Name returns the contact's profile name, or fallback if not yet known.
func (r *ContactRecord) Name(fallback string) string {
	if r == nil || r.Profile == nil || r.Profile[ProfileFieldName] == "" {
		return fallback
	}
	return r.Profile[ProfileFieldName]
}

// AppendMessage appends an entry to the record's message history in arrival
// order. It mutates the record in memory only; callers persist via the store.
func (r *ContactRecord) AppendMessage(entry MessageEntry) {
	r.Messages = append(r.Messages, entry)
}

// ContactSummary is the admin-facing overview of one contact record.
type ContactSummary struct {
	ContactID       string `json:"contact_id"`
	Name            string `json:"name"`
	Age             string `json:"age"`
	Location        string `json:"location"`
	TriageCompleted bool   `json:"triage_completed"`
	MessageCount    int    `json:"message_count"`
}

// InboundEvent is one inbound message event as consumed from a transport
// adapter. From carries the raw, un-normalized sender identifier.
type InboundEvent struct {
	From             string `json:"from"`
	Body             string `json:"body"`
	MediaURL         string `json:"media_url,omitempty"`
	MediaContentType string `json:"media_content_type,omitempty"`
}

// HasMedia reports whether the event references a media asset.
func (e InboundEvent) HasMedia() bool {
	return e.MediaURL != ""
}

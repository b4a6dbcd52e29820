// Package messaging provides the pluggable delivery abstraction over the
// Twilio and direct WhatsApp channels.
package messaging

import (
	"context"
	"fmt"
	"regexp"
)

// Service defines a pluggable message delivery abstraction. The webhook
// entry point only needs outbound sends; the direct-session variant also
// pumps inbound events into the conversation router via Start.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier, returning the digits-only form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., inbound event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// canonicalizeRecipient strips non-digits and enforces a minimum length.
// Both services share the same recipient rules.
func canonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

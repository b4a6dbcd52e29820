// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration in GemiFish.
//
// It provides outbound message delivery and authenticated retrieval of media
// assets referenced by inbound webhook events.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// DefaultFetchTimeout bounds a single media retrieval request.
const DefaultFetchTimeout = 30 * time.Second

// Sender sends WhatsApp messages through Twilio.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// MediaFetcher retrieves media asset bytes from a Twilio media locator using
// the account credentials.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number in "whatsapp:+1234567890" format.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	client     *twilio.RestClient
	httpClient *http.Client
	accountSID string
	authToken  string
	fromWhats  string
}

// NewClient creates a Twilio WhatsApp client, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables for options not provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:     client,
		httpClient: &http.Client{Timeout: DefaultFetchTimeout},
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromWhats:  cfg.FromWhats,
	}, nil
}

// SendMessage sends a WhatsApp message using the Twilio API. The recipient is
// a canonical phone number without prefix or punctuation.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("Twilio message sent", "to", to)
	return nil
}

// FetchMedia downloads a media asset from the given Twilio media URL using
// basic authentication with the account credentials. A non-success status is
// reported as an error.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Twilio FetchMedia request failed", "error", err)
		return nil, fmt.Errorf("media request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Twilio FetchMedia unexpected status", "status", resp.StatusCode)
		return nil, fmt.Errorf("media request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	slog.Debug("Twilio media fetched", "bytes", len(data))
	return data, nil
}

// MockClient records sent messages and serves canned media for tests.
type MockClient struct {
	SentMessages []SentMessage
	Media        map[string][]byte
	FetchErr     error
}

// SentMessage is one message captured by the mock.
type SentMessage struct {
	To   string
	Body string
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{Media: map[string][]byte{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) FetchMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	data, ok := m.Media[mediaURL]
	if !ok {
		return nil, fmt.Errorf("media request returned status %d", http.StatusNotFound)
	}
	return data, nil
}

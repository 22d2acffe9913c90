// Package twiliowhatsapp sends LeadPipe prompts through the Twilio API for WhatsApp.
//
// Twilio's Messages API has no interactive button or list payloads, so those
// prompts are rendered as a numbered text menu and the user replies with the
// number.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppPrefix is the address scheme Twilio uses for WhatsApp numbers.
const WhatsAppPrefix = "whatsapp:"

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

// WithFromWhats sets the sending number, with or without the whatsapp: prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// NewClient creates a Twilio client, falling back to TWILIO_* environment
// variables for unset options.
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
		client:    client,
		fromWhats: Address(cfg.FromWhats),
	}, nil
}

// SendMessage renders msg as text and sends it to the recipient.
func (c *Client) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid %s message: %w", msg.Kind, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(Render(msg))

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "kind", msg.Kind, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "to", to, "kind", msg.Kind, "sid", sid)
	return nil
}

// Address returns number in Twilio's whatsapp:+E164 form.
func Address(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, WhatsAppPrefix) {
		return number
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return WhatsAppPrefix + number
}

// StripAddress removes the whatsapp: scheme and leading "+" so Twilio senders
// share identifiers with Cloud API senders.
func StripAddress(addr string) string {
	addr = strings.TrimPrefix(strings.TrimSpace(addr), WhatsAppPrefix)
	return strings.TrimPrefix(addr, "+")
}

// Render formats msg as plain text. Options are numbered from 1 in display order.
func Render(msg models.OutboundMessage) string {
	opts := msg.Options()
	if len(opts) == 0 {
		return msg.Body
	}
	var b strings.Builder
	b.WriteString(msg.Body)
	b.WriteString("\n")
	for i, o := range opts {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o.Title)
	}
	b.WriteString("\n\nReply with a number.")
	return b.String()
}

// MockClient records rendered messages instead of sending them.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
}

// SentMessage is one message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{
		SentMessages: []SentMessage{},
	}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: Render(msg)})
	return nil
}

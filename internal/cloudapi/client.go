// Package cloudapi talks to the WhatsApp Cloud API: it sends text, reply-button
// and list messages and parses inbound webhook deliveries.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the Graph API host.
	DefaultBaseURL = "https://graph.facebook.com"
	// DefaultAPIVersion is the Graph API version used when none is configured.
	DefaultAPIVersion = "v21.0"
	// DefaultTimeout bounds a single send request.
	DefaultTimeout = 15 * time.Second
)

// ErrMissingCredentials is returned when the token or phone number ID is absent.
var ErrMissingCredentials = errors.New("access token and phone number ID must be provided")

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Code       int64
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cloud api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("cloud api: status %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// Opts holds configuration options for the Cloud API client.
type Opts struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	HTTPClient    *http.Client
}

// Option defines a configuration option for the Cloud API client.
type Option func(*Opts)

// WithToken sets the bearer access token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithPhoneNumberID sets the sending phone number ID.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithAPIVersion sets the Graph API version, e.g. "v21.0".
func WithAPIVersion(version string) Option {
	return func(o *Opts) { o.APIVersion = version }
}

// WithBaseURL overrides the Graph API host. Used by tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for sends.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client sends messages through the Cloud API.
type Client struct {
	http     *http.Client
	token    string
	endpoint string
}

// NewClient creates a Cloud API client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{APIVersion: DefaultAPIVersion, BaseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" || cfg.PhoneNumberID == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneNumberID)
	slog.Debug("Cloud API client configured", "endpoint", endpoint)
	return &Client{http: cfg.HTTPClient, token: cfg.Token, endpoint: endpoint}, nil
}

// SendMessage validates msg and posts it to the /messages endpoint.
func (c *Client) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid %s message: %w", msg.Kind, err)
	}

	payload, err := json.Marshal(buildRequest(to, msg))
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Client.SendMessage: request failed", "to", to, "kind", msg.Kind, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, body)
		slog.Error("Client.SendMessage: rejected", "to", to, "kind", msg.Kind, "status", resp.StatusCode, "error", apiErr)
		return apiErr
	}

	slog.Debug("Client.SendMessage: sent", "to", to, "kind", msg.Kind, "message_id", gjson.GetBytes(body, "messages.0.id").String())
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		res := gjson.GetBytes(body, "error")
		e.Message = res.Get("message").String()
		e.Code = res.Get("code").Int()
	}
	return e
}

func buildRequest(to string, msg models.OutboundMessage) sendRequest {
	req := sendRequest{MessagingProduct: "whatsapp", RecipientType: "individual", To: to}

	switch msg.Kind {
	case models.MessageKindButtons:
		buttons := make([]button, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			buttons = append(buttons, button{Type: "reply", Reply: buttonReply{ID: b.ID, Title: b.Title}})
		}
		req.Type = "interactive"
		req.Interactive = &interactive{
			Type:   "button",
			Body:   interactiveBody{Text: msg.Body},
			Action: interactiveAction{Buttons: buttons},
		}
	case models.MessageKindList:
		sections := make([]section, 0, len(msg.Sections))
		for _, s := range msg.Sections {
			rows := make([]sectionRow, 0, len(s.Rows))
			for _, r := range s.Rows {
				rows = append(rows, sectionRow{ID: r.ID, Title: r.Title, Description: r.Description})
			}
			sections = append(sections, section{Title: s.Title, Rows: rows})
		}
		req.Type = "interactive"
		req.Interactive = &interactive{
			Type:   "list",
			Body:   interactiveBody{Text: msg.Body},
			Action: interactiveAction{Button: msg.ListButton, Sections: sections},
		}
	default:
		req.Type = "text"
		req.Text = &sendText{Body: msg.Body, PreviewURL: strings.Contains(msg.Body, "https://")}
	}
	return req
}

// MockClient records messages instead of sending them.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	// Err, when set, is returned from every send after recording it.
	Err error
}

// SentMessage is one message captured by MockClient.
type SentMessage struct {
	To      string
	Message models.OutboundMessage
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Message: msg})
	return m.Err
}

// Sent returns a copy of the recorded messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}

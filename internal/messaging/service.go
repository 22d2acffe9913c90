// Package messaging delivers LeadPipe replies over a pluggable transport and
// dispatches inbound events through the conversation flow.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// MinPhoneDigits is the shortest accepted recipient after canonicalization.
const MinPhoneDigits = 6

// ErrServiceStopped is returned by sends after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Sender sends structured messages to a single recipient. It is implemented by
// the Cloud API and Twilio clients and their mocks.
type Sender interface {
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error
}

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a structured message to a recipient.
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop rejects further sends and releases resources.
	Stop() error
}

// canonicalizePhone strips every non-digit and enforces a minimum length.
func canonicalizePhone(service, recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}

	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// lifecycle tracks the stopped flag shared by the services.
type lifecycle struct {
	mu      sync.RWMutex
	stopped bool
}

func (l *lifecycle) isStopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stopped
}

func (l *lifecycle) stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.stopped = true
	return true
}

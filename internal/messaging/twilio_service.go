package messaging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Interactive prompts
// are delivered as numbered text, so the service remembers the options last
// offered to each recipient and maps a numeric reply back to its identifier.
type TwilioService struct {
	client Sender // twiliowhatsapp.Client or twiliowhatsapp.MockClient
	lifecycle

	// offered maps canonical recipients to the options of their last prompt.
	offered   map[string][]models.Option
	offeredMu sync.RWMutex
}

// NewTwilioService creates a new TwilioService around client.
func NewTwilioService(client Sender) *TwilioService {
	return &TwilioService{
		client:  client,
		offered: make(map[string][]models.Option),
	}
}

func (s *TwilioService) Name() string { return "twilio" }

// ValidateAndCanonicalizeRecipient accepts bare numbers as well as
// "whatsapp:+E164" addresses.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("TwilioService", twiliowhatsapp.StripAddress(recipient))
}

// Start is a no-op for Twilio (no live client)
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop rejects further sends and forgets offered options.
func (s *TwilioService) Stop() error {
	if !s.stop() {
		return nil
	}
	s.offeredMu.Lock()
	s.offered = make(map[string][]models.Option)
	s.offeredMu.Unlock()
	slog.Info("TwilioService stopped")
	return nil
}

// SendMessage sends msg via Twilio and records its options for reply resolution.
func (s *TwilioService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if s.isStopped() {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	if err := s.client.SendMessage(ctx, canonicalTo, msg); err != nil {
		return err
	}

	if opts := msg.Options(); len(opts) > 0 {
		s.offeredMu.Lock()
		s.offered[canonicalTo] = append([]models.Option(nil), opts...)
		s.offeredMu.Unlock()
	}
	return nil
}

// ResolveInbound turns a Twilio webhook delivery into an InboundEvent.
// buttonPayload (Twilio quick replies) wins; otherwise a numeric body selects
// from the options last sent to the sender. Anything else is plain text.
func (s *TwilioService) ResolveInbound(from, body, buttonPayload, messageSID string) (models.InboundEvent, error) {
	canonicalFrom, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return models.InboundEvent{}, err
	}

	ev := models.InboundEvent{MessageID: messageSID, From: canonicalFrom, Kind: models.EventKindText, Text: body}
	if buttonPayload != "" {
		ev.Kind = models.EventKindInteractive
		ev.OptionID = buttonPayload
		return ev, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return ev, nil
	}

	s.offeredMu.RLock()
	opts := s.offered[canonicalFrom]
	s.offeredMu.RUnlock()
	if n >= 1 && n <= len(opts) {
		ev.Kind = models.EventKindInteractive
		ev.OptionID = opts[n-1].ID
		slog.Debug("TwilioService resolved numeric reply", "from", canonicalFrom, "choice", n, "option", ev.OptionID)
	}
	return ev, nil
}

package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// CloudService implements Service on top of the WhatsApp Cloud API.
type CloudService struct {
	client Sender // real cloudapi.Client or cloudapi.MockClient
	lifecycle
}

// NewCloudService creates a CloudService wrapping the given sender.
func NewCloudService(client Sender) *CloudService {
	return &CloudService{client: client}
}

func (s *CloudService) Name() string { return "cloud" }

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *CloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("CloudService", recipient)
}

// Start is a no-op; inbound events arrive through the webhook.
func (s *CloudService) Start(ctx context.Context) error {
	slog.Debug("CloudService Start invoked")
	return nil
}

// Stop rejects further sends.
func (s *CloudService) Stop() error {
	if s.stop() {
		slog.Info("CloudService stopped")
	}
	return nil
}

// SendMessage sends msg through the Cloud API.
func (s *CloudService) SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error {
	if s.isStopped() {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("CloudService SendMessage validation error", "error", err, "to", to)
		return err
	}

	if err := s.client.SendMessage(ctx, canonicalTo, msg); err != nil {
		return err
	}
	slog.Debug("CloudService message sent", "to", canonicalTo, "kind", msg.Kind)
	return nil
}

package cloudapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/tidwall/gjson"
)

// ModeSubscribe is the only hub.mode accepted during webhook verification.
const ModeSubscribe = "subscribe"

var (
	// ErrMalformedPayload is returned when a delivery body is not valid JSON.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrVerificationFailed is returned when the subscription check does not match.
	ErrVerificationFailed = errors.New("webhook verification failed")
)

// VerifySubscription checks a GET verification request and returns the
// challenge to echo on success.
func VerifySubscription(mode, token, challenge, expected string) (string, error) {
	if mode != ModeSubscribe || expected == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", ErrVerificationFailed
	}
	return challenge, nil
}

// ParseWebhook extracts user messages from a delivery body. Deliveries that
// carry no messages (e.g. status updates) yield an empty slice and no error.
// Messages without a sender are skipped; other message types are returned as
// EventKindOther.
func ParseWebhook(body []byte) ([]models.InboundEvent, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPayload
	}

	var events []models.InboundEvent
	root := gjson.ParseBytes(body)
	root.Get("entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			change.Get("value.messages").ForEach(func(_, msg gjson.Result) bool {
				ev, ok := parseMessage(msg)
				if ok {
					events = append(events, ev)
				}
				return true
			})
			return true
		})
		return true
	})
	return events, nil
}

func parseMessage(msg gjson.Result) (models.InboundEvent, bool) {
	ev := models.InboundEvent{
		MessageID: msg.Get("id").String(),
		From:      msg.Get("from").String(),
		Time:      msg.Get("timestamp").Int(),
	}
	if ev.From == "" {
		slog.Warn("ParseWebhook: message without sender skipped", "id", ev.MessageID)
		return ev, false
	}

	switch typ := msg.Get("type").String(); typ {
	case "text":
		ev.Kind = models.EventKindText
		ev.Text = msg.Get("text.body").String()
	case "interactive":
		ev.Kind = models.EventKindInteractive
		ev.OptionID = firstNonEmpty(
			msg.Get("interactive.button_reply.id").String(),
			msg.Get("interactive.list_reply.id").String(),
		)
	case "button":
		// Quick-reply buttons on template messages carry their payload here.
		ev.Kind = models.EventKindInteractive
		ev.OptionID = msg.Get("button.payload").String()
		ev.Text = msg.Get("button.text").String()
	default:
		slog.Debug("ParseWebhook: unsupported message type", "type", typ, "from", ev.From)
		ev.Kind = models.EventKindOther
	}
	return ev, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package twiliowhatsapp

import (
	"context"
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", models.TextMessage("Hello Test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
}

func TestRender_NumbersOptions(t *testing.T) {
	msg := models.ListMessage("Pick", "Open",
		models.Section{Title: "A", Rows: []models.Option{{ID: "X", Title: "First"}}},
		models.Section{Title: "B", Rows: []models.Option{{ID: "Y", Title: "Second"}}},
	)
	got := Render(msg)
	for _, want := range []string{"Pick", "1. First", "2. Second", "Reply with a number."} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered text missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "1. First") > strings.Index(got, "2. Second") {
		t.Error("options rendered out of order")
	}
}

func TestRender_TextUnchanged(t *testing.T) {
	if got := Render(models.TextMessage("plain")); got != "plain" {
		t.Errorf("expected plain text, got %q", got)
	}
}

func TestAddress(t *testing.T) {
	tests := map[string]string{
		"15551234567":           "whatsapp:+15551234567",
		"+15551234567":          "whatsapp:+15551234567",
		"whatsapp:+15551234567": "whatsapp:+15551234567",
	}
	for in, want := range tests {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
		if got := StripAddress(want); got != "15551234567" {
			t.Errorf("StripAddress(%q) = %q", want, got)
		}
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+15550000000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550000000" {
		t.Errorf("unexpected from address %q", c.fromWhats)
	}
}

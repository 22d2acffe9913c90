package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WHATSAPP_TOKEN", "PHONE_NUMBER_ID", "VERIFY_TOKEN", "GRAPH_API_VERSION", "GRAPH_API_BASE_URL",
		"TRANSPORT", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
		"STATE_DSN", "REDIS_URL", "REDIS_KEY_PREFIX", "STATE_DIR", "DEDUP_PRUNE_SCHEDULE", "SUMMARY_LINK", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("PORT", "0")
	os.Unsetenv("PORT")
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("WHATSAPP_TOKEN", "tok")
	t.Setenv("PHONE_NUMBER_ID", "12345")
	t.Setenv("VERIFY_TOKEN", "verify")
	t.Setenv("PORT", "8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.WhatsApp.Token != "tok" || cfg.WhatsApp.PhoneNumberID != "12345" || cfg.WhatsApp.VerifyToken != "verify" {
		t.Errorf("credentials not loaded: %+v", cfg.WhatsApp)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.Transport != TransportCloud || cfg.WhatsApp.APIVersion != DefaultAPIVersion || cfg.Flow.SummaryLink != DefaultSummaryLink {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Store.PruneSchedule != DefaultPruneSchedule {
		t.Errorf("PruneSchedule = %q, want %q", cfg.Store.PruneSchedule, DefaultPruneSchedule)
	}
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "leadpipe.yaml")
	yamlData := `
transport: twilio
whatsapp:
  verify_token: from-yaml
twilio:
  account_sid: AC123
  auth_token: secret
  from_number: "+15550000000"
server:
  port: 9000
store:
  dsn: /tmp/leadpipe.db
flow:
  summary_link: https://example.test
logging:
  level: DEBUG
  format: json
`
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VERIFY_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.WhatsApp.VerifyToken != "from-env" {
		t.Errorf("env should override YAML, got %q", cfg.WhatsApp.VerifyToken)
	}
	if cfg.Transport != TransportTwilio || cfg.Twilio.AccountSID != "AC123" || cfg.Server.Port != 9000 {
		t.Errorf("YAML values not loaded: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging not normalized: %+v", cfg.Logging)
	}
	if cfg.StoreDSN() != "/tmp/leadpipe.db" {
		t.Errorf("StoreDSN = %q", cfg.StoreDSN())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestNormalize_ReportsAllMissing(t *testing.T) {
	err := Normalize(&Config{})
	if !errors.Is(err, ErrMissingSettings) {
		t.Fatalf("expected ErrMissingSettings, got %v", err)
	}
	for _, name := range []string{"VERIFY_TOKEN", "WHATSAPP_TOKEN", "PHONE_NUMBER_ID"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}

	err = Normalize(&Config{Transport: "twilio", WhatsApp: WhatsAppConfig{VerifyToken: "v"}})
	if !errors.Is(err, ErrMissingSettings) || !strings.Contains(err.Error(), "TWILIO_ACCOUNT_SID") {
		t.Errorf("expected missing twilio settings, got %v", err)
	}
}

func TestNormalize_Invalid(t *testing.T) {
	valid := func() *Config {
		return &Config{WhatsApp: WhatsAppConfig{Token: "t", PhoneNumberID: "p", VerifyToken: "v"}}
	}
	tests := map[string]func(*Config){
		"transport": func(c *Config) { c.Transport = "smoke-signals" },
		"port":      func(c *Config) { c.Server.Port = 70000 },
		"level":     func(c *Config) { c.Logging.Level = "loud" },
		"format":    func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range tests {
		cfg := valid()
		mutate(cfg)
		if err := Normalize(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := Normalize(valid()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := Normalize(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestStoreDSN_FallsBackToRedis(t *testing.T) {
	cfg := &Config{Store: StoreConfig{RedisURL: "redis://localhost:6379/0"}}
	if cfg.StoreDSN() != "redis://localhost:6379/0" {
		t.Errorf("StoreDSN = %q", cfg.StoreDSN())
	}
	cfg.Store.DSN = "/var/lib/leadpipe/leadpipe.db"
	if cfg.StoreDSN() != "/var/lib/leadpipe/leadpipe.db" {
		t.Errorf("STATE_DSN should win, got %q", cfg.StoreDSN())
	}
}

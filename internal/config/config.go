// Package config loads LeadPipe settings from a .env file, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// TransportCloud sends through the WhatsApp Cloud API.
	TransportCloud = "cloud"
	// TransportTwilio sends through the Twilio API for WhatsApp.
	TransportTwilio = "twilio"
)

// Defaults applied by Normalize.
const (
	DefaultPort          = 3000
	DefaultAPIVersion    = "v21.0"
	DefaultBaseURL       = "https://graph.facebook.com"
	DefaultSummaryLink   = "https://nivaara.in"
	DefaultPruneSchedule = "0 * * * *"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = LogFormatText
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// ErrMissingSettings is wrapped by Normalize when required settings are absent.
var ErrMissingSettings = errors.New("missing required settings")

// WhatsAppConfig holds Cloud API credentials and the webhook secret.
type WhatsAppConfig struct {
	Token         string `yaml:"token" envconfig:"WHATSAPP_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"PHONE_NUMBER_ID"`
	VerifyToken   string `yaml:"verify_token" envconfig:"VERIFY_TOKEN"`
	APIVersion    string `yaml:"api_version" envconfig:"GRAPH_API_VERSION"`
	BaseURL       string `yaml:"base_url" envconfig:"GRAPH_API_BASE_URL"`
}

// TwilioConfig holds Twilio credentials for the alternative transport.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" envconfig:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" envconfig:"TWILIO_FROM_NUMBER"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port" envconfig:"PORT"`
}

// StoreConfig selects the conversation store backing.
type StoreConfig struct {
	// DSN selects SQLite (path), Postgres (postgres://) or Redis (redis://).
	// Empty keeps state in memory.
	DSN       string `yaml:"dsn" envconfig:"STATE_DSN"`
	RedisURL  string `yaml:"redis_url" envconfig:"REDIS_URL"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
	// StateDir, when set, is locked for the lifetime of the process.
	StateDir string `yaml:"state_dir" envconfig:"STATE_DIR"`
	// PruneSchedule is the cron expression for forgetting old inbound message IDs.
	PruneSchedule string `yaml:"prune_schedule" envconfig:"DEDUP_PRUNE_SCHEDULE"`
}

// FlowConfig tunes the conversation copy.
type FlowConfig struct {
	SummaryLink string `yaml:"summary_link" envconfig:"SUMMARY_LINK"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Config aggregates every LeadPipe setting.
type Config struct {
	Transport string         `yaml:"transport" envconfig:"TRANSPORT"`
	WhatsApp  WhatsAppConfig `yaml:"whatsapp"`
	Twilio    TwilioConfig   `yaml:"twilio"`
	Server    ServerConfig   `yaml:"server"`
	Store     StoreConfig    `yaml:"store"`
	Flow      FlowConfig     `yaml:"flow"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// Load reads .env (if present), then the YAML file at path (if path is set),
// then environment variables. The result is not validated; call Normalize
// after applying any command-line overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		slog.Debug("config file loaded", "path", path)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	return &cfg, nil
}

// Normalize trims values, applies defaults and validates required settings.
// All missing required settings are reported in one error.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	trim(&cfg.Transport, &cfg.WhatsApp.Token, &cfg.WhatsApp.PhoneNumberID, &cfg.WhatsApp.VerifyToken,
		&cfg.WhatsApp.APIVersion, &cfg.WhatsApp.BaseURL, &cfg.Twilio.AccountSID, &cfg.Twilio.AuthToken,
		&cfg.Twilio.FromNumber, &cfg.Store.DSN, &cfg.Store.RedisURL, &cfg.Store.KeyPrefix, &cfg.Store.StateDir, &cfg.Store.PruneSchedule,
		&cfg.Flow.SummaryLink, &cfg.Logging.Level, &cfg.Logging.Format)

	cfg.Transport = strings.ToLower(cfg.Transport)
	if cfg.Transport == "" {
		cfg.Transport = TransportCloud
	}
	setDefault(&cfg.WhatsApp.APIVersion, DefaultAPIVersion)
	setDefault(&cfg.WhatsApp.BaseURL, DefaultBaseURL)
	setDefault(&cfg.Store.PruneSchedule, DefaultPruneSchedule)
	setDefault(&cfg.Flow.SummaryLink, DefaultSummaryLink)
	setDefault(&cfg.Logging.Level, DefaultLogLevel)
	setDefault(&cfg.Logging.Format, DefaultLogFormat)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	var missing []string
	if cfg.WhatsApp.VerifyToken == "" {
		missing = append(missing, "VERIFY_TOKEN")
	}
	switch cfg.Transport {
	case TransportCloud:
		if cfg.WhatsApp.Token == "" {
			missing = append(missing, "WHATSAPP_TOKEN")
		}
		if cfg.WhatsApp.PhoneNumberID == "" {
			missing = append(missing, "PHONE_NUMBER_ID")
		}
	case TransportTwilio:
		if cfg.Twilio.AccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if cfg.Twilio.AuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if cfg.Twilio.FromNumber == "" {
			missing = append(missing, "TWILIO_FROM_NUMBER")
		}
	default:
		return fmt.Errorf("invalid transport %q; allowed: %s, %s", cfg.Transport, TransportCloud, TransportTwilio)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q; allowed: debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format %q; allowed: text, json", cfg.Logging.Format)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// StoreDSN returns the DSN used to open the conversation store. STATE_DSN
// wins over REDIS_URL; both empty means in-memory.
func (c *Config) StoreDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	return c.Store.RedisURL
}

func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

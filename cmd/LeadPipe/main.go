package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/config"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	initializeLogger(os.Stdout, cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping LeadPipe", "transport", cfg.Transport, "addr", cfg.Addr(), "store_dsn_set", cfg.StoreDSN() != "")
	if err := api.Run(ctx, cfg); err != nil {
		slog.Error("LeadPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadPipe exited successfully")
}

// Flags holds command line flag values. Only flags set explicitly override
// the loaded configuration.
type Flags struct {
	configPath string
	port       int
	transport  string
	dsn        string
	stateDir   string
	logLevel   string
}

// parseCommandLineFlags parses args and reports which flags were set.
func parseCommandLineFlags(args []string) (Flags, map[string]bool, error) {
	var flags Flags
	fs := flag.NewFlagSet("leadpipe", flag.ContinueOnError)
	fs.StringVar(&flags.configPath, "config", os.Getenv("LEADPIPE_CONFIG"), "path to a YAML config file (overrides $LEADPIPE_CONFIG)")
	fs.IntVar(&flags.port, "port", 0, "HTTP listen port (overrides $PORT)")
	fs.StringVar(&flags.transport, "transport", "", "outbound transport: cloud or twilio (overrides $TRANSPORT)")
	fs.StringVar(&flags.dsn, "dsn", "", "conversation store DSN (overrides $STATE_DSN)")
	fs.StringVar(&flags.stateDir, "state-dir", "", "state directory locked for the process lifetime (overrides $STATE_DIR)")
	fs.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides $LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return flags, set, nil
}

// loadConfig loads the file and environment configuration, applies flag
// overrides and validates the result.
func loadConfig(args []string) (*config.Config, error) {
	flags, set, err := parseCommandLineFlags(args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if set["port"] {
		cfg.Server.Port = flags.port
	}
	if set["transport"] {
		cfg.Transport = flags.transport
	}
	if set["dsn"] {
		cfg.Store.DSN = flags.dsn
	}
	if set["state-dir"] {
		cfg.Store.StateDir = flags.stateDir
	}
	if set["log-level"] {
		cfg.Logging.Level = flags.logLevel
	}

	if err := config.Normalize(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// initializeLogger installs the default slog logger for the configured level and format.
func initializeLogger(w io.Writer, lc config.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	var handler slog.Handler
	if lc.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

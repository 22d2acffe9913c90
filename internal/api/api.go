// Package api provides the HTTP server for LeadPipe.
//
// It exposes the WhatsApp webhook (verification and delivery), the optional
// Twilio webhook, and read-only endpoints for health, metrics, receipts and
// leads. Run wires the store, transport and conversation flow together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/cloudapi"
	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

// Server timing and size limits.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	// MaxWebhookBodyBytes caps the size of an inbound delivery.
	MaxWebhookBodyBytes = 1 << 20
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	VerifyToken    string
	Twilio         *messaging.TwilioService
	MetricsHandler http.Handler
	Metrics        metrics.Recorder
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address, e.g. ":3000".
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the secret checked during webhook verification.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithTwilio enables POST /twilio/webhook backed by svc.
func WithTwilio(svc *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = svc }
}

// WithMetrics sets the recorder for webhook counters and the /metrics handler.
func WithMetrics(rec metrics.Recorder, handler http.Handler) Option {
	return func(o *Opts) {
		o.Metrics = rec
		o.MetricsHandler = handler
	}
}

// Server handles webhook deliveries and the read-only endpoints.
type Server struct {
	dispatcher     *messaging.Dispatcher
	store          store.Store
	twilio         *messaging.TwilioService
	verifyToken    string
	addr           string
	metrics        metrics.Recorder
	metricsHandler http.Handler
}

// NewServer creates a new API server instance.
func NewServer(dispatcher *messaging.Dispatcher, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	slog.Debug("Creating API server", "addr", cfg.Addr, "twilio_enabled", cfg.Twilio != nil,
		"metrics_enabled", cfg.MetricsHandler != nil, "verify_token_set", cfg.VerifyToken != "")
	return &Server{
		dispatcher:     dispatcher,
		store:          st,
		twilio:         cfg.Twilio,
		verifyToken:    cfg.VerifyToken,
		addr:           cfg.Addr,
		metrics:        cfg.Metrics,
		metricsHandler: cfg.MetricsHandler,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/receipts", s.receiptsHandler)
	mux.HandleFunc("/leads", s.leadsHandler)
	if s.twilio != nil {
		mux.HandleFunc("/twilio/webhook", s.twilioWebhookHandler)
	}
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// Run builds every module from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.StateDir != "" {
		lock, err := lockfile.AcquireLock(cfg.Store.StateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(cfg.StoreDSN(), store.WithKeyPrefix(cfg.Store.KeyPrefix))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.SchedulePrune(cfg.Store.PruneSchedule, st, store.DefaultDedupTTL); err != nil {
		return err
	}

	rec := metrics.NewPrometheusRecorder()

	svc, twilioSvc, err := buildService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s service: %w", svc.Name(), err)
	}
	defer svc.Stop()

	router := flow.NewRouter(flow.NewCatalog(cfg.Flow.SummaryLink))
	conv := flow.NewConversation(st, router, st)
	dispatcher := messaging.NewDispatcher(conv, svc,
		messaging.WithReceipts(st),
		messaging.WithDedup(st),
		messaging.WithMetrics(rec),
	)

	opts := []Option{
		WithAddr(cfg.Addr()),
		WithVerifyToken(cfg.WhatsApp.VerifyToken),
		WithMetrics(rec, rec.Handler()),
	}
	if twilioSvc != nil {
		opts = append(opts, WithTwilio(twilioSvc))
	}

	slog.Info("LeadPipe modules ready", "transport", svc.Name(), "store", store.DetectDSNType(cfg.StoreDSN()))
	return NewServer(dispatcher, st, opts...).ListenAndServe(ctx)
}

// buildService creates the configured transport. The Twilio service is also
// returned separately because it serves its own webhook.
func buildService(cfg *config.Config) (messaging.Service, *messaging.TwilioService, error) {
	switch cfg.Transport {
	case config.TransportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.Twilio.AccountSID),
			twiliowhatsapp.WithAuthToken(cfg.Twilio.AuthToken),
			twiliowhatsapp.WithFromWhats(cfg.Twilio.FromNumber),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	default:
		client, err := cloudapi.NewClient(
			cloudapi.WithToken(cfg.WhatsApp.Token),
			cloudapi.WithPhoneNumberID(cfg.WhatsApp.PhoneNumberID),
			cloudapi.WithAPIVersion(cfg.WhatsApp.APIVersion),
			cloudapi.WithBaseURL(cfg.WhatsApp.BaseURL),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Cloud API client: %w", err)
		}
		return messaging.NewCloudService(client), nil, nil
	}
}

package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/cloudapi"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

const (
	transportCloud  = "cloud"
	transportTwilio = "twilio"

	// emptyTwiML acknowledges a Twilio delivery without an inline reply.
	emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// webhookHandler serves GET (subscription verification) and POST (event delivery).
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := cloudapi.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.verifyToken)
	if err != nil {
		slog.Warn("Server.verifyWebhook: verification rejected", "mode", q.Get("hub.mode"), "remote", r.RemoteAddr)
		s.metrics.IncWebhook(transportCloud, "verify_rejected")
		writeText(w, http.StatusForbidden, "Forbidden")
		return
	}
	slog.Info("Server.verifyWebhook: webhook verified")
	s.metrics.IncWebhook(transportCloud, "verified")
	writeText(w, http.StatusOK, challenge)
}

// receiveWebhook always acknowledges with 200 so the platform does not retry
// deliveries that failed for reasons a retry cannot fix.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBodyBytes))
	if err != nil {
		slog.Error("Server.receiveWebhook: failed to read body", "error", err)
		s.metrics.IncWebhook(transportCloud, "read_error")
		writeText(w, http.StatusOK, "EVENT_RECEIVED")
		return
	}

	events, err := cloudapi.ParseWebhook(body)
	if err != nil {
		slog.Warn("Server.receiveWebhook: ignoring malformed payload", "error", err, "size", len(body))
		s.metrics.IncWebhook(transportCloud, "malformed")
		writeText(w, http.StatusOK, "EVENT_RECEIVED")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	for _, ev := range events {
		out := s.dispatcher.Dispatch(ctx, ev)
		if out.Err != nil {
			slog.Error("Server.receiveWebhook: dispatch failed", "error", out.Err, "from", ev.From, "message_id", ev.MessageID)
		}
	}

	slog.Debug("Server.receiveWebhook: delivery processed", "events", len(events))
	s.metrics.IncWebhook(transportCloud, "ok")
	writeText(w, http.StatusOK, "EVENT_RECEIVED")
}

// twilioWebhookHandler accepts Twilio's form-encoded inbound message callback.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		s.metrics.IncWebhook(transportTwilio, "malformed")
		writeTwiML(w)
		return
	}

	ev, err := s.twilio.ResolveInbound(r.PostForm.Get("From"), r.PostForm.Get("Body"),
		r.PostForm.Get("ButtonPayload"), r.PostForm.Get("MessageSid"))
	if err != nil {
		slog.Warn("Server.twilioWebhookHandler: ignoring delivery", "error", err)
		s.metrics.IncWebhook(transportTwilio, "malformed")
		writeTwiML(w)
		return
	}

	out := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), ev)
	if out.Err != nil {
		slog.Error("Server.twilioWebhookHandler: dispatch failed", "error", out.Err, "from", ev.From)
	}
	s.metrics.IncWebhook(transportTwilio, "ok")
	writeTwiML(w)
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, emptyTwiML); err != nil {
		slog.Error("Server.writeTwiML: failed to write response", "error", err)
	}
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"transport": s.dispatcher.Service().Name(),
	}

	if count, err := s.store.CountConversations(ctx); err != nil {
		slog.Warn("Server.healthHandler: failed to count conversations", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch conversation metrics"
	} else {
		healthData["conversations"] = count
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}

// receiptsHandler lists the outcome of every outbound send.
func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	receipts, err := s.store.GetReceipts(r.Context())
	if err != nil {
		s.storeError(w, "receipts", err)
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

// leadsHandler lists the leads captured from completed flows.
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	leads, err := s.store.GetLeads(r.Context())
	if err != nil {
		s.storeError(w, "leads", err)
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

func (s *Server) storeError(w http.ResponseWriter, what string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	slog.Error("Server.storeError: failed to read from store", "what", what, "error", err)
	writeJSONResponse(w, status, models.Error("Failed to retrieve "+what))
}

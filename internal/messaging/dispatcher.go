package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/google/uuid"
)

// Handler decides the replies for one inbound event. flow.Conversation implements it.
type Handler interface {
	Handle(ctx context.Context, ev models.InboundEvent) (flow.Decision, error)
}

// Outcome summarises what Dispatch did with one event. It is informational;
// the webhook acknowledges regardless.
type Outcome struct {
	Duplicate bool
	Rule      flow.Rule
	Sent      int
	Err       error
}

// DispatcherOpts holds the optional collaborators of a Dispatcher.
type DispatcherOpts struct {
	Receipts store.ReceiptRecorder
	Dedup    store.DedupRepo
	Metrics  metrics.Recorder
}

// DispatcherOption defines a configuration option for the Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithReceipts records a Receipt for every send attempt.
func WithReceipts(r store.ReceiptRecorder) DispatcherOption {
	return func(o *DispatcherOpts) { o.Receipts = r }
}

// WithDedup drops inbound events whose message ID was already seen.
func WithDedup(d store.DedupRepo) DispatcherOption {
	return func(o *DispatcherOpts) { o.Dedup = d }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) DispatcherOption {
	return func(o *DispatcherOpts) { o.Metrics = m }
}

// Dispatcher is the act phase: it runs the handler for an event and sends the
// resulting messages in order. All errors and panics stop at this boundary.
type Dispatcher struct {
	handler  Handler
	service  Service
	receipts store.ReceiptRecorder
	dedup    store.DedupRepo
	metrics  metrics.Recorder
}

// NewDispatcher creates a Dispatcher sending through service.
func NewDispatcher(handler Handler, service Service, opts ...DispatcherOption) *Dispatcher {
	var cfg DispatcherOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	slog.Debug("Creating Dispatcher", "service", service.Name(),
		"receipts_enabled", cfg.Receipts != nil, "dedup_enabled", cfg.Dedup != nil)
	return &Dispatcher{
		handler:  handler,
		service:  service,
		receipts: cfg.Receipts,
		dedup:    cfg.Dedup,
		metrics:  cfg.Metrics,
	}
}

// Service returns the transport used for sends.
func (d *Dispatcher) Service() Service {
	return d.service
}

// Dispatch handles ev to completion. Sends stop at the first failure and are
// not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.InboundEvent) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.Dispatch: recovered panic", "panic", r, "from", ev.From, "stack", string(debug.Stack()))
			d.metrics.IncHandlerError("panic")
			out.Err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	d.metrics.IncInbound(string(ev.Kind))

	if d.dedup != nil {
		first, err := d.dedup.RecordInbound(ctx, ev.MessageID, ev.From)
		if err != nil {
			slog.Warn("Dispatcher.Dispatch: dedup check failed, processing anyway", "error", err, "message_id", ev.MessageID)
		} else if !first {
			slog.Info("Dispatcher.Dispatch: duplicate delivery dropped", "message_id", ev.MessageID, "from", ev.From)
			d.metrics.IncDuplicate()
			out.Duplicate = true
			return out
		}
	}

	decision, err := d.handler.Handle(ctx, ev)
	if err != nil {
		slog.Error("Dispatcher.Dispatch: handler failed", "error", err, "from", ev.From)
		d.metrics.IncHandlerError("handle")
		out.Err = err
		return out
	}
	out.Rule = decision.Rule
	d.metrics.IncDecision(string(decision.Rule), string(decision.State.Step))
	if decision.Completed {
		d.metrics.IncLead()
	}

	for i, msg := range decision.Messages {
		start := time.Now()
		err := d.service.SendMessage(ctx, ev.From, msg)
		status := models.MessageStatusSent
		if err != nil {
			status = models.MessageStatusFailed
		}
		d.metrics.ObserveSend(string(msg.Kind), string(status), time.Since(start))
		d.recordReceipt(ctx, ev.From, msg.Kind, status, err)

		if err != nil {
			slog.Error("Dispatcher.Dispatch: send failed", "error", err, "to", ev.From, "kind", msg.Kind,
				"index", i, "remaining", len(decision.Messages)-i-1)
			d.metrics.IncHandlerError("send")
			out.Err = err
			return out
		}
		out.Sent++
	}

	slog.Debug("Dispatcher.Dispatch: done", "from", ev.From, "rule", decision.Rule, "sent", out.Sent)
	return out
}

func (d *Dispatcher) recordReceipt(ctx context.Context, to string, kind models.MessageKind, status models.MessageStatus, sendErr error) {
	if d.receipts == nil {
		return
	}
	r := models.Receipt{
		ID:     uuid.NewString(),
		To:     to,
		Kind:   kind,
		Status: status,
		Time:   time.Now().Unix(),
	}
	if sendErr != nil {
		r.Error = sendErr.Error()
	}
	if err := d.receipts.AddReceipt(ctx, r); err != nil {
		slog.Error("Dispatcher: failed to record receipt", "error", err, "to", to)
	}
}

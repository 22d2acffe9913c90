package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadpipe"

var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
// Each recorder owns its registry so several can coexist in tests.
type PrometheusRecorder struct {
	registry      *prometheus.Registry
	webhooks      *prometheus.CounterVec
	inbound       *prometheus.CounterVec
	duplicates    prometheus.Counter
	decisions     *prometheus.CounterVec
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	leads         prometheus.Counter
	handlerErrors *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_requests_total",
				Help:      "Webhook requests by transport and result",
			},
			[]string{"transport", "result"},
		),
		inbound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_events_total",
				Help:      "Inbound user events by kind",
			},
			[]string{"kind"},
		),
		duplicates: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_duplicates_total",
				Help:      "Inbound events dropped as platform redeliveries",
			},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Routing decisions by matched rule and resulting step",
			},
			[]string{"rule", "step"},
		),
		sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Outbound messages by kind and status",
			},
			[]string{"kind", "status"},
		),
		sendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "outbound_send_duration_seconds",
				Help:      "Duration of outbound sends in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		leads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_completed_total",
				Help:      "Completed property search flows",
			},
		),
		handlerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_errors_total",
				Help:      "Errors and panics caught at the dispatch boundary by stage",
			},
			[]string{"stage"},
		),
	}
}

func (p *PrometheusRecorder) IncWebhook(transport, result string) {
	p.webhooks.WithLabelValues(transport, result).Inc()
}

func (p *PrometheusRecorder) IncInbound(kind string) {
	p.inbound.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncDuplicate() {
	p.duplicates.Inc()
}

func (p *PrometheusRecorder) IncDecision(rule, step string) {
	p.decisions.WithLabelValues(rule, step).Inc()
}

// ObserveSend records the send count and duration for one outbound message.
func (p *PrometheusRecorder) ObserveSend(kind, status string, duration time.Duration) {
	p.sends.WithLabelValues(kind, status).Inc()
	p.sendDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncLead() {
	p.leads.Inc()
}

func (p *PrometheusRecorder) IncHandlerError(stage string) {
	p.handlerErrors.WithLabelValues(stage).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

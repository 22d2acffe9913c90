// Package metrics records webhook, routing and delivery counters.
package metrics

import "time"

// Recorder defines the interface for recording LeadPipe metrics.
type Recorder interface {
	// IncWebhook counts one webhook request by transport and result
	// (ok, ignored, malformed, rejected).
	IncWebhook(transport, result string)
	// IncInbound counts one inbound event by kind.
	IncInbound(kind string)
	// IncDuplicate counts an inbound event dropped as a redelivery.
	IncDuplicate()
	// IncDecision counts one routing decision by rule and resulting step.
	IncDecision(rule, step string)
	// ObserveSend records one outbound send by kind and status.
	ObserveSend(kind, status string, duration time.Duration)
	// IncLead counts one completed lead.
	IncLead()
	// IncHandlerError counts errors and panics caught at the dispatch boundary.
	IncHandlerError(stage string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a Recorder that discards everything.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncWebhook(_, _ string) {}
func (n *NoopRecorder) IncInbound(_ string) {}
func (n *NoopRecorder) IncDuplicate() {}
func (n *NoopRecorder) IncDecision(_, _ string) {}
func (n *NoopRecorder) ObserveSend(_, _ string, _ time.Duration) {}
func (n *NoopRecorder) IncLead() {}
func (n *NoopRecorder) IncHandlerError(_ string) {}

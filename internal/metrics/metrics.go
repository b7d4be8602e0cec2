// Package metrics holds the Prometheus collectors for the orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	// Classification
	Intents *prometheus.CounterVec

	// Flow runs
	FlowRuns     *prometheus.CounterVec
	FlowDuration *prometheus.HistogramVec

	// Policy and tools
	PolicyDecisions *prometheus.CounterVec
	ToolInvocations *prometheus.CounterVec

	// Audit chain
	AuditAppends *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Intents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spine_intents_total",
				Help: "Requests by top classified intent",
			},
			[]string{"domain", "intent"}, // both "none" on a classification miss
		),

		FlowRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spine_flow_runs_total",
				Help: "Handled requests by terminal status",
			},
			[]string{"status"},
		),

		FlowDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spine_flow_duration_seconds",
				Help:    "Time spent handling one request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		PolicyDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spine_policy_decisions_total",
				Help: "Policy outcomes per action",
			},
			[]string{"action", "outcome"}, // allowed, confirmed, denied, confirmation_required
		),

		ToolInvocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spine_tool_invocations_total",
				Help: "Tool invocations by result",
			},
			[]string{"tool", "result"}, // ok, failed
		),

		AuditAppends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spine_audit_appends_total",
				Help: "Audit chain append attempts",
			},
			[]string{"type", "result"}, // ok, error
		),
	}
}

// Intent counts a classification. An empty domain counts as a miss.
func (m *Metrics) Intent(domainName, name string) {
	if domainName == "" {
		domainName, name = "none", "none"
	}
	m.Intents.WithLabelValues(domainName, name).Inc()
}

// FlowRun counts a finished request and its latency.
func (m *Metrics) FlowRun(status domain.RunStatus, elapsed time.Duration) {
	m.FlowRuns.WithLabelValues(string(status)).Inc()
	m.FlowDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// PolicyDecision counts a policy outcome for action.
func (m *Metrics) PolicyDecision(action, outcome string) {
	m.PolicyDecisions.WithLabelValues(action, outcome).Inc()
}

// ToolInvoked counts a tool call.
func (m *Metrics) ToolInvoked(tool string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ToolInvocations.WithLabelValues(tool, result).Inc()
}

// AuditAppend matches audit.AppendObserver.
func (m *Metrics) AuditAppend(_ string, eventType domain.AuditEventType, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AuditAppends.WithLabelValues(string(eventType), result).Inc()
}

// Package metrics exposes Prometheus counters for governance decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FirewallDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpguard",
		Name:      "firewall_decisions_total",
		Help:      "Total capability firewall decisions by effect.",
	}, []string{"effect"})

	GovernedInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpguard",
		Name:      "governed_invocations_total",
		Help:      "Total governed tool invocations by tool, action, and result.",
	}, []string{"tool", "action", "result"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mcpguard",
		Name:      "execution_duration_seconds",
		Help:      "Executor latency in seconds for permitted actions.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"tool", "action"})

	ApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpguard",
		Name:      "approvals_total",
		Help:      "Total resolved approval requests by status.",
	}, []string{"status"})

	PendingApprovals = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mcpguard",
		Name:      "pending_approvals",
		Help:      "Number of approval requests currently waiting for a decision.",
	})

	AuditWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpguard",
		Name:      "audit_write_errors_total",
		Help:      "Total failed appends to the durable stores by store.",
	}, []string{"store"})
)

// Handler returns an http.Handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

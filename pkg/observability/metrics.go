// Package observability provides Prometheus metrics for the bridge service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Quote metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	RoutesReturned  *prometheus.CounterVec

	// Execution metrics
	SessionsCreated  *prometheus.CounterVec
	StepReports      *prometheus.CounterVec
	IntegrityRejects *prometheus.CounterVec
	PolicyRejects    *prometheus.CounterVec
	AuthRejects      *prometheus.CounterVec

	// Rate limiting
	RateLimited     *prometheus.CounterVec
	LimiterFallback prometheus.Counter

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates a Metrics instance registered with reg. A nil reg
// uses a fresh private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "solbridge"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "provider_latency_seconds",
			Help:      "Provider quote latency by provider and outcome",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 20},
		}, []string{"provider", "outcome"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "provider_errors_total",
			Help:      "Total number of provider quote failures by reason",
		}, []string{"provider", "reason"}),
		RoutesReturned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "routes_returned_total",
			Help:      "Total number of routes returned by provider",
		}, []string{"provider"}),

		SessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of execution sessions created by provider",
		}, []string{"provider"}),
		StepReports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "step_reports_total",
			Help:      "Total number of step reports by status and result",
		}, []string{"status", "result"}),
		IntegrityRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "integrity_rejects_total",
			Help:      "Total number of routes rejected by integrity checks",
		}, []string{"reason"}),
		PolicyRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "policy_rejects_total",
			Help:      "Total number of routes rejected by execution policy by chain type",
		}, []string{"chain_type"}),
		AuthRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auth_rejects_total",
			Help:      "Total number of rejected session authorization proofs",
		}, []string{"reason"}),

		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Total number of requests rejected by the rate limiter by class",
		}, []string{"class"}),
		LimiterFallback: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fallback_total",
			Help:      "Total number of checks answered by the in-memory fallback",
		}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),

		gatherer: reg,
	}
}

// ObserveProvider records one provider call
func (m *Metrics) ObserveProvider(provider string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderLatency.WithLabelValues(provider, outcome).Observe(time.Since(started).Seconds())
}

// Handler returns an HTTP handler serving the registered metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

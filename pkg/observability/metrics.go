// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tiefsee gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// CompletionBuckets defines histogram buckets suited for chat completion
// latencies, ranging from 100ms to 120s.
var CompletionBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and model.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiefsee_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "model"},
	)

	// RequestDuration records HTTP request duration in seconds by method and model.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tiefsee_request_duration_seconds",
			Help:    "Request duration",
			Buckets: CompletionBuckets,
		},
		[]string{"method", "model"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tiefsee_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// UpstreamRequestsTotal counts calls to the upstream by endpoint and outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiefsee_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamLatency records upstream call latency in seconds, measured
	// until response headers arrive.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tiefsee_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: CompletionBuckets,
		},
		[]string{"endpoint"},
	)

	// UpstreamRetriesTotal counts repeated completion attempts by error type.
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiefsee_upstream_retries_total",
			Help: "Upstream completion retries",
		},
		[]string{"reason"},
	)

	// FallbacksTotal counts degraded-service notices sent instead of a relayed stream.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiefsee_fallbacks_total",
			Help: "Fallback responses",
		},
		[]string{"model"},
	)

	// CredentialRefreshesTotal counts access token refreshes by result
	// (ok, rejected, error).
	CredentialRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiefsee_credential_refreshes_total",
			Help: "Access token refreshes",
		},
		[]string{"result"},
	)

	// CredentialCacheEntries tracks the number of cached access tokens.
	CredentialCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tiefsee_credential_cache_entries",
			Help: "Cached access tokens",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamRequestsTotal,
		UpstreamLatency,
		UpstreamRetriesTotal,
		FallbacksTotal,
		CredentialRefreshesTotal,
		CredentialCacheEntries,
	)
}

// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the byok service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/byok/pkg/api"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, route pattern, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "byok_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "byok_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts vendor calls. outcome is "success" or
	// the canonical error code.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "mode", "outcome"},
	)

	// ProviderLatency records vendor call latency in seconds, until the last
	// chunk for streamed calls.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "byok_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model", "mode"},
	)

	// ProviderTokensTotal counts tokens by direction (prompt/completion).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// StreamChunksTotal counts content chunks forwarded to callers.
	StreamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_stream_chunks_total",
			Help: "Stream chunks forwarded",
		},
		[]string{"provider"},
	)

	// MessagesFinalizedTotal counts assistant messages reaching a terminal status.
	MessagesFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_messages_finalized_total",
			Help: "Assistant messages finalized",
		},
		[]string{"provider", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byok_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		StreamChunksTotal,
		MessagesFinalizedTotal,
		RateLimitRejectedTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProviderCall records one finished vendor call. A nil err counts
// as success.
func ObserveProviderCall(provider api.ProviderID, model, mode string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(api.CodeOf(err))
	}
	ProviderRequestsTotal.WithLabelValues(string(provider), model, mode, outcome).Inc()
	ProviderLatency.WithLabelValues(string(provider), model, mode).Observe(d.Seconds())
}

// ObserveUsage adds token usage to the token counters. Nil usage is ignored.
func ObserveUsage(provider api.ProviderID, model string, u *api.Usage) {
	if u == nil {
		return
	}
	ProviderTokensTotal.WithLabelValues(string(provider), model, "prompt").Add(float64(u.PromptTokens))
	ProviderTokensTotal.WithLabelValues(string(provider), model, "completion").Add(float64(u.CompletionTokens))
}

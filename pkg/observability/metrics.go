// Package observability provides Prometheus metrics for the request
// executor, the upstream HTTP transport and the stream normalizer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/modelbridge/pkg/api"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// AttemptsTotal counts executor attempts by provider and outcome. The
	// outcome is "ok" or the error kind of the failed attempt.
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelbridge_attempts_total",
			Help: "Executor attempts",
		},
		[]string{"provider", "outcome"},
	)

	// RetriesTotal counts retries scheduled by the executor, by the error kind
	// that caused them.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelbridge_retries_total",
			Help: "Executor retries",
		},
		[]string{"provider", "kind"},
	)

	// AttemptDuration records the time from send until response headers.
	AttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelbridge_attempt_duration_seconds",
			Help:    "Attempt duration until response headers",
			Buckets: LLMBuckets,
		},
		[]string{"provider"},
	)

	// UpstreamRequestsTotal counts HTTP round trips to the backend. It is
	// filled by the instrumented transport.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelbridge_upstream_requests_total",
			Help: "Upstream HTTP requests",
		},
		[]string{"provider", "code", "method"},
	)

	// UpstreamInFlight tracks backend round trips that have not returned
	// response headers yet.
	UpstreamInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelbridge_upstream_in_flight",
			Help: "Upstream requests awaiting headers",
		},
	)

	// StreamEventsTotal counts normalized stream events emitted to callers.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelbridge_stream_events_total",
			Help: "Normalized stream events",
		},
		[]string{"provider", "type"},
	)

	// MalformedFramesTotal counts SSE frames whose payload was not valid JSON
	// or could not be interpreted.
	MalformedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelbridge_malformed_frames_total",
			Help: "Malformed stream frames",
		},
		[]string{"provider"},
	)

	// TokensTotal counts tokens reported by the backend by direction
	// (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelbridge_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// StreamsActive tracks streams whose normalizer goroutine is running.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelbridge_streams_active",
			Help: "Active normalized streams",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AttemptsTotal,
		RetriesTotal,
		AttemptDuration,
		UpstreamRequestsTotal,
		UpstreamInFlight,
		StreamEventsTotal,
		MalformedFramesTotal,
		TokensTotal,
		StreamsActive,
	)
}

// RecordUsage adds the token counts of one call.
func RecordUsage(provider, model string, u api.Usage) {
	if u.InputTokens > 0 {
		TokensTotal.WithLabelValues(provider, model, "input").Add(float64(u.InputTokens))
	}
	if u.OutputTokens > 0 {
		TokensTotal.WithLabelValues(provider, model, "output").Add(float64(u.OutputTokens))
	}
}

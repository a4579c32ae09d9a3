package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the Prometheus instrumentation for the query engine.
//
// Tracked concerns:
//   - query lifecycle (count, duration, in-flight) by generate mode
//   - LLM and embedding call performance by provider
//   - retrieval operations by endpoint
//   - outbound stream traffic and send failures
//   - HTTP surface latency
type Metrics struct {
	// QueryCounter counts completed queries.
	// Labels: mode (none|summarize|generate), status (success|error|aborted)
	QueryCounter *prometheus.CounterVec

	// QueryDuration measures end-to-end RunQuery latency in seconds.
	// Labels: mode
	QueryDuration *prometheus.HistogramVec

	// ActiveQueries gauges queries currently inside RunQuery.
	ActiveQueries prometheus.Gauge

	// LLMRequestCounter counts LLM completions.
	// Labels: provider, level (low|high), status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider, level
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// EmbeddingRequestCounter counts embedding calls.
	// Labels: provider, status (success|error)
	EmbeddingRequestCounter *prometheus.CounterVec

	// EmbeddingRequestDuration measures embedding call latency in seconds.
	// Labels: provider
	EmbeddingRequestDuration *prometheus.HistogramVec

	// RetrievalCounter counts vector-store operations.
	// Labels: endpoint, operation (search|search_by_url|delete|upload), status
	RetrievalCounter *prometheus.CounterVec

	// RetrievalDuration measures vector-store operation latency in seconds.
	// Labels: endpoint, operation
	RetrievalDuration *prometheus.HistogramVec

	// ResultsSent counts ranked results delivered to clients.
	// Labels: track (fast_track|regular)
	ResultsSent *prometheus.CounterVec

	// MessagesSent counts protocol frames by message type.
	// Labels: message_type
	MessagesSent *prometheus.CounterVec

	// StreamSendFailures counts writes that found the connection dead.
	StreamSendFailures prometheus.Counter

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency in seconds.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the process-wide metrics set, registering it with the
// default Prometheus registry on first call. Subsequent calls return the
// same instance, so constructors and tests may call it freely.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			QueryCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_queries_total",
					Help: "Total number of completed queries",
				},
				[]string{"mode", "status"},
			),

			QueryDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "askweb_query_duration_seconds",
					Help:    "End-to-end query latency in seconds",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
				},
				[]string{"mode"},
			),

			ActiveQueries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "askweb_active_queries",
					Help: "Queries currently being orchestrated",
				},
			),

			LLMRequestCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_llm_requests_total",
					Help: "Total number of LLM requests by provider, level, and status",
				},
				[]string{"provider", "level", "status"},
			),

			LLMRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "askweb_llm_request_duration_seconds",
					Help:    "Duration of LLM API requests in seconds",
					Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
				},
				[]string{"provider", "level"},
			),

			EmbeddingRequestCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_embedding_requests_total",
					Help: "Total number of embedding requests by provider and status",
				},
				[]string{"provider", "status"},
			),

			EmbeddingRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "askweb_embedding_request_duration_seconds",
					Help:    "Duration of embedding API requests in seconds",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
				},
				[]string{"provider"},
			),

			RetrievalCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_retrieval_operations_total",
					Help: "Total number of vector-store operations by endpoint, operation, and status",
				},
				[]string{"endpoint", "operation", "status"},
			),

			RetrievalDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "askweb_retrieval_duration_seconds",
					Help:    "Duration of vector-store operations in seconds",
					Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
				[]string{"endpoint", "operation"},
			),

			ResultsSent: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_results_sent_total",
					Help: "Ranked results delivered to clients by track",
				},
				[]string{"track"},
			),

			MessagesSent: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_messages_sent_total",
					Help: "Protocol frames sent to clients by message type",
				},
				[]string{"message_type"},
			),

			StreamSendFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "askweb_stream_send_failures_total",
					Help: "Writes that found the client connection dead",
				},
			),

			HTTPRequestCounter: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "askweb_http_requests_total",
					Help: "Total number of HTTP requests by method, path, and status code",
				},
				[]string{"method", "path", "status_code"},
			),

			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "askweb_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
				},
				[]string{"method", "path"},
			),
		}
	})
	return metrics
}

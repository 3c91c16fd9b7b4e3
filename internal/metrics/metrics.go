package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parker_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TriplesAdmitted counts triples that passed the modular filter
	TriplesAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parker_triples_admitted_total",
			Help: "Total number of triples admitted into the producer buffer",
		},
	)

	// TriplesDelivered counts triples handed to consumers
	TriplesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_triples_delivered_total",
			Help: "Total number of triples delivered to consumers",
		},
		[]string{"kind"},
	)

	// BatchesDelivered counts producer responses that carried data
	BatchesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_batches_delivered_total",
			Help: "Total number of batches delivered",
		},
		[]string{"kind"},
	)

	// BufferOccupancy tracks the number of buffered triples
	BufferOccupancy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parker_buffer_occupancy",
			Help: "Number of triples currently buffered by the producer",
		},
	)

	// ProducerState is 1 for the current producer state and 0 otherwise
	ProducerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parker_producer_state",
			Help: "Current producer state",
		},
		[]string{"state"},
	)

	// InstructionsRejected counts rejected producer instructions
	InstructionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_instructions_rejected_total",
			Help: "Total number of rejected producer instructions",
		},
		[]string{"instruction", "reason"},
	)

	// RepliesDropped counts producer replies that could not be delivered
	RepliesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_replies_dropped_total",
			Help: "Total number of producer replies that could not be delivered",
		},
		[]string{"instruction"},
	)

	// SquareTests counts square tests by result
	SquareTests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_square_tests_total",
			Help: "Total number of square tests run on delivered triples",
		},
		[]string{"result"},
	)

	// BatchCheckDuration tracks how long a batch takes to check
	BatchCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parker_batch_check_duration_seconds",
			Help:    "Time spent square-testing one batch",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// SolutionsFound counts triples that passed the square test
	SolutionsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parker_solutions_found_total",
			Help: "Total number of triples whose eight combinations are all squares",
		},
	)

	// CheckpointsSaved counts checkpoint writes by status
	CheckpointsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_checkpoints_total",
			Help: "Total number of checkpoint attempts",
		},
		[]string{"status"},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parker_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSquareTest records the outcome of one square test
func RecordSquareTest(passed bool) {
	if passed {
		SquareTests.WithLabelValues("pass").Inc()
		return
	}
	SquareTests.WithLabelValues("fail").Inc()
}

// RecordBatchChecked records the time spent checking a batch
func RecordBatchChecked(duration time.Duration) {
	BatchCheckDuration.Observe(duration.Seconds())
}

// RecordSolution records a triple that passed the square test
func RecordSolution() {
	SolutionsFound.Inc()
}

// RecordCheckpoint records a checkpoint attempt
func RecordCheckpoint(status string) {
	CheckpointsSaved.WithLabelValues(status).Inc()
}

// RecordToolCall records an MCP tool invocation
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

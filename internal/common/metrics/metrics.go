package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	// HTTPRequestDuration tracks request latency by method, path, and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Database metrics
var (
	// DBTransactionDuration tracks transaction duration by operation label.
	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_transaction_duration_seconds",
			Help:    "Duration of database transactions in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// DBConflicts counts version-conditional write conflicts by repository.
	DBConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_write_conflicts_total",
			Help: "Total number of version-conditional write conflicts",
		},
		[]string{"repository"},
	)
)

// Payment metrics
var (
	// PaymentsTotal counts payment attempts by card type and outcome.
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Total number of payment attempts",
		},
		[]string{"card_type", "outcome"},
	)

	// CascadeAttempts tracks how many funding accounts were tried per debit payment.
	CascadeAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_cascade_attempts",
			Help:    "Number of funding accounts attempted per debit payment",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		},
	)
)

// Event metrics
var (
	// EventsPublished counts events published by topic.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published",
		},
		[]string{"topic"},
	)

	// EventPublishFailures counts failed publish attempts by topic.
	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Total number of failed event publish attempts",
		},
		[]string{"topic"},
	)

	// OutboxPendingEvents gauges the number of unpublished outbox events.
	OutboxPendingEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Number of unpublished events in outbox",
		},
	)
)

// Card metrics
var (
	// CardsCreated counts issued cards by type.
	CardsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cards_created_total",
			Help: "Total number of cards issued",
		},
		[]string{"card_type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns an HTTP middleware that records request metrics.
// Side effects: records Prometheus metrics and reads the current time.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)
		path := normalizePath(r.URL.Path)

		HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// normalizePath replaces identifier path segments with placeholders to avoid
// metric cardinality explosion. Card and account IDs are opaque strings, so
// every segment after a known collection prefix is treated as an identifier.
func normalizePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) == 0 || segments[0] != "cards" {
		return path
	}
	normalized := make([]string, len(segments))
	copy(normalized, segments)
	switch {
	case len(segments) >= 3 && segments[1] == "customer":
		normalized[2] = "{customerId}"
	case len(segments) >= 2 && segments[1] != "debit" && segments[1] != "credit":
		normalized[1] = "{id}"
		if len(segments) >= 4 && segments[2] == "main-account" {
			normalized[3] = "{accountId}"
		}
	}
	return "/" + strings.Join(normalized, "/")
}

// RecordConflict increments the version-conditional write conflict counter.
// Side effects: records a Prometheus metric.
func RecordConflict(repository string) {
	DBConflicts.WithLabelValues(repository).Inc()
}

// RecordTransactionDuration records a transaction duration.
// Side effects: records a Prometheus metric.
func RecordTransactionDuration(operation string, duration time.Duration) {
	DBTransactionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPayment increments the payment counter.
// Side effects: records a Prometheus metric.
func RecordPayment(cardType, outcome string) {
	PaymentsTotal.WithLabelValues(cardType, outcome).Inc()
}

// RecordCardCreated increments the issued cards counter.
// Side effects: records a Prometheus metric.
func RecordCardCreated(cardType string) {
	CardsCreated.WithLabelValues(cardType).Inc()
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "propdocs"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	throttledTotal  *prometheus.CounterVec

	dedupDecisionsTotal *prometheus.CounterVec
	dedupSimilarity     *prometheus.HistogramVec
	dedupCandidates     *prometheus.HistogramVec
	dedupDuration       *prometheus.HistogramVec
	uploadBytes         *prometheus.HistogramVec

	*resilienceCollectors
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	throttledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests refused by traffic control, by reason.",
		},
		[]string{"service", "reason"},
	)
	dedupDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "decisions_total",
			Help:      "Duplicate decisions by status, suggested and applied action.",
		},
		[]string{"service", "endpoint", "status", "suggested_action", "applied_action"},
	)
	dedupSimilarity := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "text_similarity",
			Help:      "Text similarity of the winning candidate.",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.995, 1},
		},
		[]string{"service", "status"},
	)
	dedupCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "candidates_evaluated",
			Help:      "Distribution of candidates compared per decision.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"service", "endpoint"},
	)
	dedupDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "decision_duration_seconds",
			Help:      "Time from request to duplicate decision, extraction included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "upload_bytes",
			Help:      "Size of stored uploads in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 8),
		},
		[]string{"service"},
	)
	resilience := newResilienceCollectors(service)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		throttledTotal,
		dedupDecisionsTotal,
		dedupSimilarity,
		dedupCandidates,
		dedupDuration,
		uploadBytes,
	)
	resilience.register(registry)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		throttledTotal:       throttledTotal,
		dedupDecisionsTotal:  dedupDecisionsTotal,
		dedupSimilarity:      dedupSimilarity,
		dedupCandidates:      dedupCandidates,
		dedupDuration:        dedupDuration,
		uploadBytes:          uploadBytes,
		resilienceCollectors: resilience,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case path == "/v1/documents/check":
		return path
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordDecision tracks one duplicate decision. applied is empty for dry runs.
func (m *HTTPServerMetrics) RecordDecision(service, endpoint, status, suggested, applied string, similarity float64, candidates int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if suggested == "" {
		suggested = "unknown"
	}
	if applied == "" {
		applied = "none"
	}
	m.dedupDecisionsTotal.WithLabelValues(service, endpoint, status, suggested, applied).Inc()
	m.dedupCandidates.WithLabelValues(service, endpoint).Observe(float64(candidates))
	m.dedupDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if status != "not_duplicate" {
		m.dedupSimilarity.WithLabelValues(service, status).Observe(similarity)
	}
}

func (m *HTTPServerMetrics) RecordUpload(service string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.uploadBytes.WithLabelValues(service).Observe(float64(bytes))
}

// RecordThrottled counts requests refused with reason "rate_limit" or "backpressure".
func (m *HTTPServerMetrics) RecordThrottled(service, reason string) {
	m.throttledTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddlewareNormalizesDocumentPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	for _, path := range []string{"/v1/documents/abc", "/v1/documents/def", "/v1/documents/check"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", "GET", "/v1/documents/{document_id}", "409")); got != 2 {
		t.Fatalf("expected 2 normalized requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", "GET", "/v1/documents/check", "409")); got != 1 {
		t.Fatalf("expected check path kept verbatim, got %v", got)
	}
}

func TestRecordDecision(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordDecision("api", "upload", "exact_duplicate", "cancel", "cancel", 1, 3, 20*time.Millisecond)
	m.RecordDecision("api", "check", "not_duplicate", "proceed", "", 0, 0, time.Millisecond)

	if got := testutil.ToFloat64(m.dedupDecisionsTotal.WithLabelValues("api", "upload", "exact_duplicate", "cancel", "cancel")); got != 1 {
		t.Fatalf("unexpected upload decisions: %v", got)
	}
	if got := testutil.ToFloat64(m.dedupDecisionsTotal.WithLabelValues("api", "check", "not_duplicate", "proceed", "none")); got != 1 {
		t.Fatalf("unexpected dry-run decisions: %v", got)
	}
	if got := testutil.CollectAndCount(m.dedupSimilarity); got != 1 {
		t.Fatalf("similarity is only observed for duplicates, got %d series", got)
	}
}

func TestResilienceObserverExported(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveRetry("nats.publish")
	m.ObserveBreakerState("nats.publish", "open")
	m.ObserveBreakerState("nats.publish", "bogus")

	if got := testutil.ToFloat64(m.retriesTotal.WithLabelValues("api", "nats.publish")); got != 1 {
		t.Fatalf("unexpected retries: %v", got)
	}
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("api", "nats.publish")); got != 2 {
		t.Fatalf("unexpected breaker state: %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "propdocs_resilience_retries_total") {
		t.Fatalf("expected resilience metrics in exposition")
	}
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartDocument()
	m.FinishDocument("worker", 10*time.Millisecond, nil)
	m.ObserveQueueLag("worker", -time.Second)
	m.RecordSkipped("worker", "replaced")

	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "success")); got != 1 {
		t.Fatalf("unexpected processed total: %v", got)
	}
	if got := testutil.ToFloat64(m.processInFlight); got != 0 {
		t.Fatalf("expected no in-flight documents, got %v", got)
	}
	if got := testutil.CollectAndCount(m.queueLag); got != 0 {
		t.Fatalf("negative lag must be ignored, got %d series", got)
	}
	if got := testutil.ToFloat64(m.skippedTotal.WithLabelValues("worker", "replaced")); got != 1 {
		t.Fatalf("unexpected skipped total: %v", got)
	}
}

package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/property-docs/internal/config"
	"github.com/kirillkom/property-docs/internal/core/domain"
	"github.com/kirillkom/property-docs/internal/core/ports"
	"github.com/kirillkom/property-docs/internal/observability/metrics"
)

const (
	serviceName = "api"

	// multipartMemory is how much of a form is buffered in memory before spilling to disk.
	multipartMemory = 8 << 20
	// formOverhead leaves room for the non-file fields and multipart boundaries.
	formOverhead = 1 << 20
)

// linkContextFields are the multipart fields copied into the upload's link context.
var linkContextFields = []string{"property_id", "lease_id", "tenant_id"}

// BreakerReporter exposes circuit breaker health for /healthz.
type BreakerReporter interface {
	OpenBreakers() []string
}

type Router struct {
	cfg        config.Config
	ingest     ports.DocumentIngestor
	classifier ports.DuplicateClassifier
	docs       ports.DocumentReader
	metrics    *metrics.HTTPServerMetrics
	breakers   BreakerReporter
}

type RouterOption func(*Router)

// WithMetrics shares a metrics registry, so that adapters built outside the router report into it.
func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		if m != nil {
			rt.metrics = m
		}
	}
}

func WithBreakerReporter(reporter BreakerReporter) RouterOption {
	return func(rt *Router) {
		rt.breakers = reporter
	}
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	classifier ports.DuplicateClassifier,
	docs ports.DocumentReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:        cfg,
		ingest:     ingest,
		classifier: classifier,
		docs:       docs,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.metrics == nil {
		rt.metrics = metrics.NewHTTPServerMetrics(serviceName)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/check", rt.checkDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/dedup/classify", rt.classify)

	onReject := func(reason string) { rt.metrics.RecordThrottled(serviceName, reason) }

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.BackpressureWait(), onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	handler = authMiddleware(handler, rt.cfg.APIAuthToken)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if rt.breakers != nil {
		if open := rt.breakers.OpenBreakers(); len(open) > 0 {
			resp["status"] = "degraded"
			resp["open_breakers"] = open
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadDocument answers 201 when the file was stored and 409 with the decision otherwise.
func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	start := time.Now()
	req, cleanup, ok := rt.parseUploadForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	result, err := rt.ingest.Upload(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rt.metrics.RecordDecision(
		serviceName,
		"upload",
		string(result.Decision.Status),
		string(result.Decision.SuggestedAction),
		string(result.Applied),
		result.Decision.Signals.TextSimilarity,
		result.Decision.CandidatesEvaluated,
		time.Since(start),
	)

	if rejection := result.Rejection(); rejection != nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   errorCode(rejection),
			"message": rejection.Error(),
			"result":  result,
		})
		return
	}
	if result.Document != nil {
		rt.metrics.RecordUpload(serviceName, result.Document.ByteSize)
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) checkDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	start := time.Now()
	req, cleanup, ok := rt.parseUploadForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	decision, err := rt.ingest.Check(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rt.metrics.RecordDecision(
		serviceName,
		"check",
		string(decision.Status),
		string(decision.SuggestedAction),
		"",
		decision.Signals.TextSimilarity,
		decision.CandidatesEvaluated,
		time.Since(start),
	)
	writeJSON(w, http.StatusOK, decision)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_input", "document id is required")
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type classifyRequest struct {
	Incoming   domain.IncomingFile        `json:"incoming"`
	Candidates []domain.CandidateDocument `json:"candidates"`
}

// classify exposes the engine directly for callers that already hold both sides of the comparison.
func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	start := time.Now()
	var req classifyRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, rt.maxUploadBytes()))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json: "+err.Error())
		return
	}

	result, err := rt.classifier.Classify(req.Incoming, req.Candidates)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rt.metrics.RecordDecision(
		serviceName,
		"classify",
		string(result.Status),
		string(result.SuggestedAction),
		"",
		result.Signals.TextSimilarity,
		result.CandidatesEvaluated,
		time.Since(start),
	)
	writeJSON(w, http.StatusOK, result)
}

// parseUploadForm reads the multipart form into an UploadRequest. On failure it has already
// written the response.
func (rt *Router) parseUploadForm(w http.ResponseWriter, r *http.Request) (domain.UploadRequest, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes()+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_input", "upload exceeds the size limit")
			return domain.UploadRequest{}, nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_input", "multipart form is required")
		return domain.UploadRequest{}, nil, false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "multipart field 'file' is required")
		return domain.UploadRequest{}, nil, false
	}

	link := make(domain.LinkContext, len(linkContextFields))
	for _, field := range linkContextFields {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			link[field] = v
		}
	}

	req := domain.UploadRequest{
		Filename:    fileHeader.Filename,
		MimeType:    fileHeader.Header.Get("Content-Type"),
		Body:        file,
		LinkContext: link,
		Resolution:  domain.SuggestedAction(strings.TrimSpace(r.FormValue("resolution"))),
	}
	cleanup := func() {
		_ = file.Close()
		removeMultipartFiles(r.MultipartForm)
	}
	return req, cleanup, true
}

func removeMultipartFiles(form *multipart.Form) {
	if form == nil {
		return
	}
	if err := form.RemoveAll(); err != nil {
		slog.Warn("multipart_cleanup_failed", "error", err)
	}
}

func (rt *Router) maxUploadBytes() int64 {
	if rt.cfg.UploadMaxBytes > 0 {
		return rt.cfg.UploadMaxBytes
	}
	return 25 << 20
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "status", status, "error", err)
	}
	writeError(w, status, errorCode(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

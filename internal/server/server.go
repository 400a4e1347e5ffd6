// Package server exposes the analysis engine over HTTP.
//
// Routes:
//
//	POST /v1/analyze        one [analysis.Request] → one [analysis.Report]
//	POST /v1/analyze/batch  {"requests": [...]} → {"reports": [...]}
//	GET  /healthz, /readyz  see package health
//	GET  /metrics           Prometheus exposition, when configured
//
// The analyzer behind the routes can be replaced at runtime with
// [Server.SetAnalyzer]; in-flight requests finish on the analyzer they
// started with.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/muaalem/internal/analysis"
	"github.com/MrWong99/muaalem/internal/health"
	"github.com/MrWong99/muaalem/internal/observe"
	"github.com/MrWong99/muaalem/pkg/align"
	"github.com/MrWong99/muaalem/pkg/ctc"
	"github.com/MrWong99/muaalem/pkg/multilevel"
	"github.com/MrWong99/muaalem/pkg/vocab"
)

// DefaultMaxRequestBytes caps request bodies when no limit is configured.
const DefaultMaxRequestBytes int64 = 8 << 20

// BatchRequest is the body of POST /v1/analyze/batch.
type BatchRequest struct {
	Requests []analysis.Request `json:"requests"`
}

// BatchResponse is the reply of POST /v1/analyze/batch.
type BatchResponse struct {
	Reports []*analysis.Report `json:"reports"`
}

// ErrorResponse is the body of every non-2xx reply from the analyze routes.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to the current analyzer.
type Server struct {
	analyzer atomic.Pointer[analysis.Analyzer]

	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	maxBytes       int64

	router chi.Router
}

// Option is a functional option for [New].
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics enables the tracing and request metrics middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMaxRequestBytes caps request bodies. Values ≤ 0 select
// [DefaultMaxRequestBytes].
func WithMaxRequestBytes(n int64) Option {
	return func(s *Server) { s.maxBytes = n }
}

// New creates a [Server] serving a.
func New(a *analysis.Analyzer, opts ...Option) *Server {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxRequestBytes
	}
	s.analyzer.Store(a)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}
	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}
	r.Post("/v1/analyze", s.Analyze)
	r.Post("/v1/analyze/batch", s.AnalyzeBatch)
	return r
}

// SetAnalyzer replaces the analyzer used for new requests.
func (s *Server) SetAnalyzer(a *analysis.Analyzer) { s.analyzer.Store(a) }

// Analyzer returns the analyzer currently serving requests.
func (s *Server) Analyzer() *analysis.Analyzer { return s.analyzer.Load() }

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Analyze handles POST /v1/analyze.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if !s.decode(w, r, &req) {
		return
	}
	rep, err := s.Analyzer().Analyze(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// AnalyzeBatch handles POST /v1/analyze/batch.
func (s *Server) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if !s.decode(w, r, &body) {
		return
	}
	if len(body.Requests) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "batch has no requests"})
		return
	}
	reps, err := s.Analyzer().AnalyzeBatch(r.Context(), body.Requests)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Reports: reps})
}

// decode reads a JSON body into v. It writes the error reply and returns
// false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		observe.Logger(r.Context()).Debug("invalid request body", "err", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("analysis failed", "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// StatusFor maps an analysis error to its HTTP status code.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, analysis.ErrInvalidRequest),
		errors.Is(err, multilevel.ErrMalformedInput),
		errors.Is(err, ctc.ErrMalformedStream),
		errors.Is(err, align.ErrEmptyReference),
		errors.Is(err, vocab.ErrUnknownLabel):
		return http.StatusBadRequest
	case errors.Is(err, vocab.ErrUnknownSymbol):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

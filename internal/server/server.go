// Package server implements the HTTP server that exposes the assistant's
// retrieval, ingestion, mutation, and conversational endpoints as a REST API.
// The server is started by the `askhr serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/service"
)

// New constructs a Server from the provided service facade, optional agent
// router, and config.
func New(svc backend, router chatter, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover multi-query generation calls.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("server: no API key configured, authentication disabled")
	}

	reg := prometheus.NewRegistry()

	s := &Server{
		svc:     svc,
		router:  router,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()

	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name,
			authMiddleware(cfg.APIKey,
				rl.middleware(h)))
	}

	mux.Handle("POST /api/rag", protected("rag", s.handleQuery))
	mux.Handle("POST /api/ingest", protected("ingest", s.handleIngest))
	mux.Handle("DELETE /api/qa", protected("qa_delete", s.handleDeleteQA))
	mux.Handle("PUT /api/qa", protected("qa_update", s.handleUpdateQA))
	mux.Handle("DELETE /api/files", protected("files_delete", s.handleDeleteFiles))
	mux.Handle("POST /api/agent", protected("agent", s.handleAgent))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/rag. It answers a batch of questions for one
// tenant with the requested generation strategy.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Queries) == 0 {
		writeJSONError(w, http.StatusBadRequest, "queries is required")
		return
	}

	answers, err := s.svc.Query(r.Context(), req.UserType, req.Queries, req.Strategy)
	if err != nil {
		s.metrics.queriesTotal.WithLabelValues(strategyLabel(req.Strategy), "error").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.queriesTotal.WithLabelValues(strategyLabel(req.Strategy), "ok").Inc()
	writeJSON(w, http.StatusOK, answers)
}

// handleIngest handles POST /api/ingest in either Q&A or document mode.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case len(req.Records) > 0 && req.Filename != "":
		writeJSONError(w, http.StatusBadRequest, "records and filename are mutually exclusive")
	case len(req.Records) > 0:
		result, err := s.svc.IngestQA(r.Context(), req.UserType, req.Records)
		if err != nil {
			s.metrics.ingestTotal.WithLabelValues("qa", "error").Inc()
			s.writeError(w, r, err)
			return
		}
		s.metrics.ingestTotal.WithLabelValues("qa", "ok").Inc()
		writeJSON(w, http.StatusOK, result)
	case req.Filename != "":
		result, err := s.svc.IngestFile(r.Context(), req.UserType, req.Filename, req.Text)
		if err != nil {
			s.metrics.ingestTotal.WithLabelValues("file", "error").Inc()
			s.writeError(w, r, err)
			return
		}
		s.metrics.ingestTotal.WithLabelValues("file", "ok").Inc()
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSONError(w, http.StatusBadRequest, "either records or filename is required")
	}
}

// handleDeleteQA handles DELETE /api/qa.
func (s *Server) handleDeleteQA(w http.ResponseWriter, r *http.Request) {
	var req deleteQARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "ids is required")
		return
	}

	result, err := s.svc.DeleteQA(r.Context(), req.UserType, req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUpdateQA handles PUT /api/qa.
func (s *Server) handleUpdateQA(w http.ResponseWriter, r *http.Request) {
	var req updateQARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Updates) == 0 {
		writeJSONError(w, http.StatusBadRequest, "updates is required")
		return
	}

	result, err := s.svc.UpdateQA(r.Context(), req.UserType, req.Updates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeleteFiles handles DELETE /api/files.
func (s *Server) handleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	var req deleteFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Filenames) == 0 {
		writeJSONError(w, http.StatusBadRequest, "filenames is required")
		return
	}

	result, err := s.svc.DeleteByFile(r.Context(), req.UserType, req.Filenames)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAgent handles POST /api/agent, one conversational turn.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "agent not configured")
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.router.Chat(r.Context(), req.Session, req.UserType, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps service errors to HTTP status codes and writes the JSON
// error body. The mapping mirrors the error taxonomy: tenant and validation
// problems are 400, missing data is 404, malformed generation output is 502,
// and storage unavailability is 503.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rag.ErrNoTenant), errors.Is(err, service.ErrUnknownStrategy):
		status = http.StatusBadRequest
	case errors.Is(err, rag.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rag.ErrMalformedOutput):
		status = http.StatusBadGateway
	case errors.Is(err, rag.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSONError(w, status, err.Error())
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// strategyLabel normalizes the strategy metric label.
func strategyLabel(strategy string) string {
	if strategy == "" {
		return service.StrategyQuestionAnswer
	}
	return strategy
}

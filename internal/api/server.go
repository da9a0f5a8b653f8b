package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/intake"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// MonitorCreator turns free text into a stored, scheduled monitor.
type MonitorCreator interface {
	Create(ctx context.Context, text, rawURL string) (watch.Monitor, bool, error)
}

// Checker runs one check synchronously.
type Checker interface {
	Check(ctx context.Context, req watch.CheckRequest) watch.CheckOutcome
}

// Triggerer runs a scheduled job immediately.
type Triggerer interface {
	Trigger(jobID string) bool
}

// JobInspector reports the recurring job behind a monitor.
type JobInspector interface {
	Interval(jobID string) (time.Duration, bool)
}

// Submitter queues a check for the worker pool.
type Submitter interface {
	Submit(ctx context.Context, req watch.CheckRequest) error
}

// Deps are the collaborators behind the routes. Ready is optional.
type Deps struct {
	Store     watch.MonitorStore
	Creator   MonitorCreator
	Checker   Checker
	Triggerer Triggerer
	Submitter Submitter
	Jobs      JobInspector
	Ready     func(ctx context.Context) error
}

type scheduleStatus struct {
	Scheduled       bool `json:"scheduled"`
	IntervalSeconds int  `json:"interval_seconds,omitempty"`
}

// Config tunes middleware.
type Config struct {
	RequestTimeout time.Duration
	AuthEnabled    bool
	APIKey         string
}

// Server wires HTTP handlers to the check pipeline and stores.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 4 * time.Minute
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/monitors", func(r chi.Router) {
			r.Post("/", s.createMonitor)
			r.Get("/", s.listMonitors)
			r.Route("/{monitor_id}", func(r chi.Router) {
				r.Get("/", s.getMonitor)
				r.Post("/trigger", s.triggerMonitor)
			})
		})
		r.Post("/check", s.runCheck)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createMonitorRequest struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type createMonitorResponse struct {
	Monitor watch.Monitor `json:"monitor"`
	Created bool          `json:"created"`
}

func (s *Server) createMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text required")
		return
	}
	m, created, err := s.deps.Creator.Create(r.Context(), req.Text, req.URL)
	switch {
	case errors.Is(err, intake.ErrURLRequired), errors.Is(err, intake.ErrInvalidURL):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("create monitor failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create monitor")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, createMonitorResponse{Monitor: m, Created: created})
}

func (s *Server) listMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.deps.Store.List(r.Context())
	if err != nil {
		s.logger.Error("list monitors failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}
	if monitors == nil {
		monitors = []watch.Monitor{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"monitors": monitors})
}

func (s *Server) getMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "monitor_id")
	m, err := s.deps.Store.GetByID(r.Context(), id)
	if errors.Is(err, watch.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		s.logger.Error("get monitor failed", zap.String("monitor_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}
	resp := map[string]any{"monitor": m}
	if s.deps.Jobs != nil {
		interval, ok := s.deps.Jobs.Interval(id)
		resp["schedule"] = scheduleStatus{Scheduled: ok, IntervalSeconds: int(interval / time.Second)}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// triggerMonitor wakes the scheduled job, or queues a one-off check when
// the monitor exists but is not scheduled on this node.
func (s *Server) triggerMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "monitor_id")
	if s.deps.Triggerer != nil && s.deps.Triggerer.Trigger(id) {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"monitor_id": id, "status": "triggered"})
		return
	}
	if _, err := s.deps.Store.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, watch.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}
	if s.deps.Submitter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no worker pool configured")
		return
	}
	if err := s.deps.Submitter.Submit(r.Context(), watch.CheckRequest{MonitorID: id}); err != nil {
		s.logger.Warn("queue check failed", zap.String("monitor_id", id), zap.Error(err))
		msg := "check queue unavailable"
		if errors.Is(err, watch.ErrQueueFull) {
			msg = "check queue full"
		}
		s.writeError(w, http.StatusServiceUnavailable, msg)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"monitor_id": id, "status": "queued"})
}

// runCheck always answers 200 with the outcome; failures are reported in
// the status field so the caller reschedules either way.
func (s *Server) runCheck(w http.ResponseWriter, r *http.Request) {
	var req watch.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MonitorID == "" {
		s.writeError(w, http.StatusBadRequest, "monitor_id required")
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Checker.Check(r.Context(), req))
}

type requestIDKey struct{}

// RequestID returns the request id assigned by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

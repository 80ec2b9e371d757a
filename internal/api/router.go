// Package api serves the pod's read-only HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/model"
)

const checkTimeout = 2 * time.Second

// Reader produces a fresh snapshot; telemetry.Assembler satisfies it.
type Reader interface {
	Current(ctx context.Context) model.CurrentReadings
}

// Check is one readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Server struct {
	reader  Reader
	checks  []Check
	metrics http.Handler
	logger  *zap.Logger
	Router  *mux.Router
}

// NewServer registers /current, /healthz, /readyz and, when metrics is
// non-nil, /metrics.
func NewServer(reader Reader, checks []Check, metrics http.Handler, logger *zap.Logger) *Server {
	s := &Server{
		reader:  reader,
		checks:  checks,
		metrics: metrics,
		logger:  logger.Named("api"),
		Router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.Router
	r.Use(s.accessLog)

	r.HandleFunc("/current", s.handleCurrent).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// handleCurrent reads every sensor on demand. Failed sensors are omitted, so
// the response is always 200.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reader.Current(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	type resp struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	out := resp{Ready: true, Checks: make(map[string]string, len(s.checks))}
	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			out.Ready = false
			out.Checks[c.Name] = err.Error()
			continue
		}
		out.Checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if !out.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

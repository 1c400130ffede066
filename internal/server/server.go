// Package server exposes the engine's HTTP API: task submission and polling,
// agent definition management, the idempotent callback receiver, and
// operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenovak/2100-AAA/internal/config"
	"github.com/zenovak/2100-AAA/internal/database"
	"github.com/zenovak/2100-AAA/internal/engine"
	"github.com/zenovak/2100-AAA/internal/types"
)

// Server is the HTTP API server.
type Server struct {
	manager  *engine.Manager
	agents   database.AgentDAO
	tasks    database.TaskDAO
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	http     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAgentDAO enables the agent definition endpoints.
func WithAgentDAO(dao database.AgentDAO) Option {
	return func(s *Server) {
		s.agents = dao
	}
}

// WithTaskDAO enables the callback receiver endpoint.
func WithTaskDAO(dao database.TaskDAO) Option {
	return func(s *Server) {
		s.tasks = dao
	}
}

// WithGatherer sets the prometheus gatherer served at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a server around a run manager.
func New(cfg config.ServerConfig, manager *engine.Manager, opts ...Option) *Server {
	s := &Server{
		manager:  manager,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/task", s.submitTask)
		r.Get("/task/{taskID}", s.getTask)
		r.Get("/tasks", s.listTasks)

		r.Post("/agent", s.registerAgent)
		r.Get("/agents", s.listAgents)
		r.Get("/agent/{name}", s.getAgent)
		r.Delete("/agent/{name}", s.deleteAgent)

		r.Post("/callback", s.receiveCallback)
	})

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// ListenAndServe runs the server until ctx is canceled, then drains with
// the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps engine error codes to HTTP statuses.
func statusFor(err error) int {
	var engineErr *types.EngineError
	if !errors.As(err, &engineErr) {
		return http.StatusInternalServerError
	}
	switch engineErr.Code {
	case types.TASK_NOT_FOUND, database.AGENT_NOT_FOUND:
		return http.StatusNotFound
	case types.WORKFLOW_PARSE_FAILED, types.WORKFLOW_INVALID:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

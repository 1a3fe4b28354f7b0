// Package api serves the task and search operations as JSON over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Aman-CERP/tasksearch/internal/embed"
	"github.com/Aman-CERP/tasksearch/internal/search"
	"github.com/Aman-CERP/tasksearch/internal/tasks"
	"github.com/Aman-CERP/tasksearch/internal/telemetry"
	"github.com/Aman-CERP/tasksearch/internal/vectorindex"
)

// Searcher runs semantic searches.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
}

// Deps are the collaborators of a Server. Metrics and Logger are optional.
type Deps struct {
	Tasks    *tasks.Service
	Search   Searcher
	Embedder embed.Embedder
	Index    vectorindex.Index
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Server routes HTTP requests to the task service and the orchestrator.
type Server struct {
	tasks    *tasks.Service
	search   Searcher
	embedder embed.Embedder
	index    vectorindex.Index
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer builds the route table.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tasks:    d.Tasks,
		search:   d.Search,
		embedder: d.Embedder,
		index:    d.Index,
		metrics:  d.Metrics,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /users", s.handleRegisterUser)
	s.mux.HandleFunc("GET /users/{id}", s.handleGetUser)

	s.mux.HandleFunc("POST /tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /tasks", s.handleListTasks)
	s.mux.HandleFunc("GET /tasks/search", s.handleSearch)
	s.mux.HandleFunc("GET /tasks/user/{userID}", s.handleListByUser)
	s.mux.HandleFunc("GET /tasks/status/{status}", s.handleListByStatus)
	s.mux.HandleFunc("GET /tasks/date/{start}/{end}", s.handleListByDate)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PUT /tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("PATCH /tasks/{id}/status", s.handleSetStatus)
	s.mux.HandleFunc("PATCH /tasks/{id}/assign", s.handleAssign)
	s.mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// Handler returns the routes wrapped in request-id, logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withObservability(s.withRecover(s.mux)))
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ListenAndServe serves h until ctx is cancelled, then shuts down
// gracefully within 10 seconds.
func ListenAndServe(ctx context.Context, cfg HTTPConfig, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", slog.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("http_server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

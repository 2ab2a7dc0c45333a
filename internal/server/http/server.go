// Package httpserver provides the HTTP API and the HTML timeline page.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-timeline/internal/database"
	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/observability"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/view"
)

// Timeline is the application state the handlers read and drive.
// *timeline.Timeline implements it.
type Timeline interface {
	Status() (timeline.Status, error)
	Locale() *locale.Locale
	Query(q view.Query) (view.Projection, view.Filter, error)
	Sidebar() (timeline.Sidebar, error)
	Paper(id domain.PaperID) (*domain.Paper, error)
	Like(ctx context.Context, id domain.PaperID) (*likes.PendingWrite, error)
	Reload(ctx context.Context) error
}

// HealthChecker reports database health. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	timeline   Timeline
	db         HealthChecker
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server. db may be nil when no component
// uses PostgreSQL; metrics may be nil.
func NewServer(
	cfg Config,
	tl Timeline,
	db HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		timeline: tl,
		db:       db,
		metrics:  metrics,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.metricsMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	// HTML pages
	r.Get("/", s.indexPage)
	r.Get("/papers/{paperID}", s.paperPage)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/papers", s.listPapers)
		r.Get("/papers/{paperID}", s.getPaper)
		r.Post("/papers/{paperID}/like", s.likePaper)
		r.Get("/sidebar", s.getSidebar)
		r.Post("/corpus/reload", s.reloadCorpus)
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	health := s.db.Health(r.Context())
	if health.Healthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler reports ready once the corpus is loaded and the
// database, when configured, is healthy.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	status, loadErr := s.timeline.Status()
	if status != timeline.StatusReady {
		resp := map[string]string{
			"status": "not_ready",
			"corpus": string(status),
		}
		if loadErr != nil {
			resp["error_kind"] = domain.ErrorKind(loadErr)
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if s.db != nil {
		health := s.db.Health(r.Context())
		if !health.Healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"corpus":   string(status),
				"database": health.Status,
				"error":    health.Error,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"corpus": string(status),
	})
}

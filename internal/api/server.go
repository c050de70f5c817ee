package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/tollwatch/internal/domain"
	"github.com/opensource-finance/tollwatch/internal/ingest"
	"github.com/opensource-finance/tollwatch/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Deps groups the components the API serves from. Only Service and Repo
// are required; the rest are reported by /health when present.
type Deps struct {
	Service *ingest.Service
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Metrics *metrics.Metrics
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps, cfg.MaxUploadMB, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/upload", handler.Upload)

		r.Get("/transactions", handler.ListTransactions)
		r.Get("/transactions/alerts", handler.ListAlerts)
		r.Get("/transactions/{id}", handler.GetTransaction)

		r.Get("/summary", handler.Summary)
		r.Get("/metrics", handler.DashboardMetrics)

		r.Get("/charts/category", handler.CategoryChart)
		r.Get("/charts/severity", handler.SeverityChart)
		r.Get("/charts/monthly", handler.MonthlyChart)

		r.Get("/filenames/normalize", handler.NormalizeFilename)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

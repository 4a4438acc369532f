// Package server exposes the reference backend over HTTP: table access,
// the stock RPCs and the realtime change feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/scheduler"
)

// Backend is everything the API serves
type Backend interface {
	domain.RemoteStore
	domain.StockDecrementer
	domain.OrderPlacer
	domain.DepletionHook
}

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Backend Backend
	// DB is reported by the status endpoint. Optional.
	DB *database.DB
	// Scheduler's jobs are reported by the status endpoint. Optional.
	Scheduler *scheduler.Scheduler
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	backend   Backend
	db        *database.DB
	scheduler *scheduler.Scheduler
	port      int
	startedAt time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		backend:   cfg.Backend,
		db:        cfg.DB,
		scheduler: cfg.Scheduler,
		port:      cfg.Port,
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: change feed connections stay open. API routes
		// are bounded by the timeout middleware instead.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.handleHealth)

	// The change feed is long lived and sits outside the request timeout
	s.router.Get("/api/realtime", s.handleRealtime)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if !devMode {
			r.Use(middleware.Compress(5))
		}

		r.Get("/system/status", s.handleSystemStatus)

		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/", s.handleQuery)
			r.Post("/", s.handleInsert)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
		})

		r.Route("/rpc", func(r chi.Router) {
			r.Post("/decrement_stock", s.handleDecrementStock)
			r.Post("/place_order", s.handlePlaceOrder)
			r.Post("/mark_depleted", s.handleMarkDepleted)
		})
	})
}

// Handler returns the root handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

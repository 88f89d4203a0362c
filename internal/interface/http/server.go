// Package http wires the calendar, health and OpenAPI routes into a server.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/ahe-ics/ahe-ics/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr is the bind address, e.g. "0.0.0.0:8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// RealIPHeader is the trusted header carrying the client address.
	RealIPHeader string

	// Per-IP rate limit. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// JSONEnabled registers the calendar JSON routes.
	JSONEnabled bool

	// OpenAPIEnabled registers /openapi.json.
	OpenAPIEnabled bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           "0.0.0.0:8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		RateLimit:      10,
		RateBurst:      20,
		JSONEnabled:    true,
		OpenAPIEnabled: true,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Calendar *handlers.CalendarHandler
	Health   http.Handler
	OpenAPI  http.Handler

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     *mux.Router
	httpServer *http.Server
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.Handler(),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	if s.deps.Health != nil {
		s.router.Handle("/healthz", s.deps.Health).Methods(http.MethodGet)
	}

	if s.deps.OpenAPI != nil && s.config.OpenAPIEnabled {
		s.router.Handle("/openapi.json", s.deps.OpenAPI).Methods(http.MethodGet)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Calendar routes, rate limited per client address
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.Calendar == nil {
		return
	}
	calendar := s.router.NewRoute().Subrouter()
	if s.config.RateLimit > 0 {
		limiter := handlers.NewIPRateLimiter(s.config.RateLimit, max(1, s.config.RateBurst))
		calendar.Use(mux.MiddlewareFunc(limiter.Middleware))
	}

	calendar.HandleFunc("/calendar.ics", s.deps.Calendar.ServeICS).Methods(http.MethodGet)
	calendar.HandleFunc("/calendar/me.ics", s.deps.Calendar.ServeICS).Methods(http.MethodGet)
	if s.config.JSONEnabled {
		calendar.HandleFunc("/calendar.json", s.deps.Calendar.ServeJSON).Methods(http.MethodGet)
		calendar.HandleFunc("/calendar/me.json", s.deps.Calendar.ServeJSON).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return handlers.Chain(
		handlers.RequestIDMiddleware(s.logger),
		handlers.RealIPMiddleware(s.config.RealIPHeader),
		handlers.RecoveryMiddleware,
		handlers.LoggingMiddleware,
		handlers.SecurityHeadersMiddleware,
	)(s.router)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

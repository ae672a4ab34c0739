// Package web serves stored extraction runs for review.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/web/handlers"
	"github.com/emu-entities/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	runs       handlers.RunSource
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance reading runs from runs
func NewServer(config *Config, runs handlers.RunSource) *Server {
	server := &Server{
		config: config,
		runs:   runs,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	runsHandler := &handlers.RunsHandler{Runs: s.runs}

	s.router.HandleFunc("/health", handlers.Health).Methods("GET", "OPTIONS")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", runsHandler.ListRuns).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{id:[0-9]+}/entities", runsHandler.GetEntities).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{id:[0-9]+}/entities.csv", runsHandler.ExportCSV).Methods("GET", "OPTIONS")

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging())

	if s.config.Auth.APIKey != "" {
		api.Use(middleware.Authentication(s.config.Auth.APIKey))
	}
}

// Start runs the server until SIGINT or SIGTERM
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		debug.Info("starting server", "addr", "http://"+s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	debug.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	debug.Info("server stopped")
	return nil
}

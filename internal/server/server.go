// Package server wires handlers, middleware and routes into an HTTP server.
//
// It is the composition root of the HTTP surface: the executor and language
// registry come in from the caller, the snippet database is opened here and
// closed on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/code-sandbox/internal/auth"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/handler"
	"github.com/sakif/code-sandbox/internal/language"
	"github.com/sakif/code-sandbox/internal/middleware"
	sqliteRepo "github.com/sakif/code-sandbox/internal/repository/sqlite"
	"github.com/sakif/code-sandbox/internal/service"
)

const (
	shutdownTimeout = 30 * time.Second
	// Executions can legitimately take compile + run timeout plus queueing.
	defaultWriteTimeout = 2 * time.Minute
)

// Config holds server configuration.
type Config struct {
	Port           int
	DBPath         string
	AllowedOrigins []string
	// APISecret enables bearer-token auth on /api when set.
	APISecret    string
	MaxBodyBytes int64
	WriteTimeout time.Duration
	// Backend is reported by /healthz.
	Backend string
	// Available decides the "available" flag of /api/languages.
	Available handler.AvailabilityFunc
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB // owned by the server, closed on shutdown
	tokens *auth.TokenService
}

// New opens the snippet database and builds the router.
func New(cfg Config, exec executor.Executor, registry *language.Registry, logger *slog.Logger) (*Server, error) {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	var tokens *auth.TokenService
	if cfg.APISecret != "" {
		var err error
		if tokens, err = auth.NewTokenService(cfg.APISecret); err != nil {
			return nil, fmt.Errorf("configuring api tokens: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}
	s.setupRoutes(exec, registry)

	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                 → liveness + backend
// GET    /api/languages           → registry listing
// POST   /api/execute             → run one program
// GET    /api/execute/ws          → websocket execution stream
// GET    /api/snippets            → list snippets
// POST   /api/snippets            → create snippet
// GET    /api/snippets/{id}       → get snippet
// PUT    /api/snippets/{id}       → update snippet
// DELETE /api/snippets/{id}       → delete snippet
// POST   /api/snippets/{id}/run   → run a saved snippet
//
// Middleware runs in the order it is added.
func (s *Server) setupRoutes(exec executor.Executor, registry *language.Registry) {
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", handler.HandleHealth(s.config.Backend))

	snippetService := service.NewSnippetService(s.db, registry, exec, s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetService, s.logger)
	executeHandler := handler.NewExecuteHandler(exec, s.logger)
	streamHandler := handler.NewStreamHandler(exec, s.config.AllowedOrigins, s.config.MaxBodyBytes, s.logger)
	languagesHandler := handler.NewLanguagesHandler(registry, s.config.Available)

	s.router.Route("/api", func(r chi.Router) {
		if s.tokens != nil {
			r.Use(auth.RequireToken(s.tokens))
		}
		if s.config.MaxBodyBytes > 0 {
			r.Use(chimiddleware.RequestSize(s.config.MaxBodyBytes))
		}

		r.Get("/languages", languagesHandler.HandleList)
		r.Post("/execute", executeHandler.HandleExecute)
		r.Get("/execute/ws", streamHandler.HandleStream)

		r.Get("/snippets", snippetHandler.HandleList)
		r.Post("/snippets", snippetHandler.HandleCreate)
		r.Get("/snippets/{id}", snippetHandler.HandleGetByID)
		r.Put("/snippets/{id}", snippetHandler.HandleUpdate)
		r.Delete("/snippets/{id}", snippetHandler.HandleDelete)
		r.Post("/snippets/{id}/run", snippetHandler.HandleRun)
	})
}

// Close releases the database. Start calls it on return.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM or ctx is done, then shuts down
// gracefully: stop accepting connections, give in-flight requests up to 30s,
// close the database.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("backend", s.config.Backend),
			slog.String("database", s.config.DBPath),
			slog.Bool("auth", s.tokens != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Package server provides the HTTP server and routing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/config"
	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/modules/agents"
	"github.com/mosaicfin/atrader/internal/modules/llm"
	"github.com/mosaicfin/atrader/internal/modules/market"
	"github.com/mosaicfin/atrader/internal/modules/prompts"
	"github.com/mosaicfin/atrader/internal/modules/tasks"
)

// Config carries everything the HTTP layer needs.
type Config struct {
	Log              zerolog.Logger
	Cfg              *config.Config
	CoreDB           *database.DB
	MarketDB         *database.DB
	ConfigDB         *database.DB
	AgentHandlers    *agents.Handlers
	TemplateHandlers *prompts.Handlers
	ProviderHandlers *llm.Handlers
	MarketHandlers   *market.Handlers
	TaskHandlers     *tasks.Handlers
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New builds the router and mounts every module surface under /api.
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	requireAdmin := RequireAdmin(cfg.Cfg.AdminToken, cfg.Cfg.DevMode, log)
	systemHandlers := NewSystemHandlers(log, cfg.Cfg.DataDir, cfg.CoreDB, cfg.MarketDB, cfg.ConfigDB)

	r.Get("/health", systemHandlers.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/system/status", systemHandlers.status)
		cfg.AgentHandlers.RegisterRoutes(r, requireAdmin)
		cfg.TemplateHandlers.RegisterRoutes(r, requireAdmin)
		cfg.ProviderHandlers.RegisterRoutes(r, requireAdmin)
		cfg.MarketHandlers.RegisterRoutes(r, requireAdmin)
		cfg.TaskHandlers.RegisterRoutes(r, requireAdmin)
	})

	return &Server{
		router: r,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // decision cycles can run long
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Router exposes the chi mux, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

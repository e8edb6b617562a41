// Package api exposes the read-only status surface of the advisory service.
// All control goes through the Telegram bot; the HTTP API only observes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/database"
	"market-advisor-bot/internal/events"
	"market-advisor-bot/internal/marketdata"
	"market-advisor-bot/internal/monitor"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins string
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	monitor    *monitor.Monitor
	state      *advisor.State
	repo       *database.Repository
	db         *database.DB
	sources    *marketdata.Client
	hub        *WSHub
	config     ServerConfig
	logger     zerolog.Logger
	startedAt  time.Time
}

// NewServer creates a new API server. The repository and db may be nil when
// history persistence is disabled.
func NewServer(
	config ServerConfig,
	mon *monitor.Monitor,
	state *advisor.State,
	repo *database.Repository,
	db *database.DB,
	sources *marketdata.Client,
	eventBus *events.EventBus,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(config.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	if len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		monitor:   mon,
		state:     state,
		repo:      repo,
		db:        db,
		sources:   sources,
		hub:       InitWebSocket(eventBus, logger),
		config:    config,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}

	server.setupRoutes()

	return server
}

func splitOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/recommendation", s.handleRecommendation)
		api.GET("/featureset", s.handleFeatureSet)
		api.GET("/history", s.handleHistory)
		api.GET("/sources", s.handleSources)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

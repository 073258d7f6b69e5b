// Package api exposes a small status HTTP endpoint: health, pass statistics,
// placement history and scheduled task state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/history"
	"github.com/postersync/postersync/internal/scheduler"
	"github.com/postersync/postersync/internal/syncer"
)

// Server handles HTTP requests for the status API.
type Server struct {
	echo      *echo.Echo
	cfg       config.ServerConfig
	syncer    *syncer.Service
	store     *history.Store
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
	startedAt time.Time
}

// NewServer creates the status API server. store and sched may be nil when
// the corresponding features are disabled.
func NewServer(cfg config.ServerConfig, sync *syncer.Service, store *history.Store, sched *scheduler.Scheduler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		cfg:       cfg,
		syncer:    sync,
		store:     store,
		scheduler: sched,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("Request")
			return nil
		},
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/history", s.handleHistory)
	api.GET("/tasks", s.handleTasks)
	api.POST("/tasks/:id/run", s.handleRunTask)
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info().Str("addr", addr).Msg("Starting status API")

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

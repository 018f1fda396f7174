// Package server exposes the generation orchestrator over HTTP with an
// SSE progress stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/curriculum"
	"github.com/evalscribe/evalscribe/internal/generation"
	"github.com/evalscribe/evalscribe/internal/logging"
	"github.com/evalscribe/evalscribe/internal/session"
	"github.com/evalscribe/evalscribe/internal/version"
)

type Server struct {
	echo      *echo.Echo
	orch      *generation.Orchestrator
	sessions  session.Service
	logs      logging.Service
	curricula *curriculum.Registry
	cfg       *config.Config
}

func New(orch *generation.Orchestrator, sessions session.Service, logs logging.Service, curricula *curriculum.Registry, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("Request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	s := &Server{
		echo:      e,
		orch:      orch,
		sessions:  sessions,
		logs:      logs,
		curricula: curricula,
		cfg:       cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/curricula", s.handleListCurricula)
	api.GET("/events", s.handleWatchGenerations)
	api.POST("/generations", s.handleStartGeneration)
	api.GET("/generations", s.handleListGenerations)
	api.GET("/generations/:id", s.handleGetGeneration)
	api.GET("/generations/:id/logs", s.handleGetGenerationLogs)
	api.GET("/generations/:id/logs/stream", s.handleStreamGenerationLogs)
	api.POST("/generations/:id/cancel", s.handleCancelGeneration)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	slog.Info("Server listening", "addr", addr, "version", version.Version)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

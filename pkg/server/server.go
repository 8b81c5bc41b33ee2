package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apiorch/pkg/log"
	"apiorch/pkg/orchestrator"
	"apiorch/pkg/requestlog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const defaultShutdownTimeout = 10 * time.Second

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch                    *orchestrator.Orchestrator
	recent                  *requestlog.MemorySink
	gracefulShutdownTimeout time.Duration
	echo                    *echo.Echo
}

// NewServer builds the HTTP surface. recent may be nil, in which case /requests/recent is not served.
func NewServer(orch *orchestrator.Orchestrator, recent *requestlog.MemorySink, gracefulShutdownTimeout time.Duration) *Server {
	if gracefulShutdownTimeout <= 0 {
		gracefulShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{
		orch:                    orch,
		recent:                  recent,
		gracefulShutdownTimeout: gracefulShutdownTimeout,
		echo:                    echo.New(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until SIGINT or SIGTERM, then shuts down.
func (s *Server) Start(addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting API orchestrator")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("Server failed")
		s.orch.Shutdown(context.Background())
		return err
	}

	return s.Shutdown()
}

// Shutdown drains HTTP traffic first, then stops the orchestrator.
func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.gracefulShutdownTimeout)
	defer cancel()

	err := s.echo.Shutdown(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	s.orch.Shutdown(ctx)
	log.Info().Msg("Shutdown complete")
	return err
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/status", s.statusHandler)
	s.echo.POST("/endpoints/reload", s.reloadHandler)
	s.echo.GET("/requests/recent", s.recentHandler)
	s.echo.Any("/proxy/*", s.proxyHandler)
}

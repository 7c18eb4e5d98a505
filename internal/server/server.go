// Package server exposes the operational HTTP surface: health probes,
// Prometheus metrics, and a read-only user report endpoint for moderators.
// The chat command layer lives in the gateway, not here.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/platform/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reporter is the slice of the application service the report endpoint uses.
type Reporter interface {
	UserReport(ctx context.Context, id domain.UserID) (*domain.User, error)
	MessageScoreForUser(ctx context.Context, id domain.UserID) (int, error)
}

// storageHealthChecker is a minimal interface for PostgreSQL health checks.
type storageHealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo    *echo.Echo
	storage storageHealthChecker
	app     Reporter
}

func NewServer(storage storageHealthChecker, app Reporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:    e,
		storage: storage,
		app:     app,
	}

	e.GET("/health/live", srv.handleLiveness)
	e.GET("/health/ready", srv.handleReadiness)
	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, version.Get())
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/users/:id", srv.handleUserReport)

	return srv
}

func (s *Server) Start(port string) error {
	return s.echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Package server exposes the thin JSON HTTP surface over memory.Manager
// using github.com/labstack/echo/v4.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/caihaoran-00/memchr/memory"
)

// Server wraps the Echo instance and its dependencies. Every handler
// method is a thin translation from HTTP to one Manager call; no business
// logic lives here.
type Server struct {
	echo    *echo.Echo
	manager *memory.Manager
	metrics *memory.PrometheusMetrics
	logger  *slog.Logger
}

// New builds the Server and registers the session/context/profile/stats
// CRUD routes plus the ambient /healthz and /metrics endpoints. metrics may
// be nil to disable /metrics.
func New(manager *memory.Manager, metrics *memory.PrometheusMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, manager: manager, metrics: metrics, logger: logger}
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.Gzip())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true, LogURI: true, LogLatency: true, LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("http request",
				"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.echo.POST("/session/start", s.handleSessionStart)
	s.echo.POST("/session/message", s.handleSessionMessage)
	s.echo.POST("/session/end", s.handleSessionEnd)
	s.echo.POST("/context", s.handleContext)
	s.echo.GET("/profile/:user_id", s.handleGetProfile)
	s.echo.PUT("/profile", s.handlePutProfile)
	s.echo.GET("/stats/:user_id", s.handleStats)
	s.echo.GET("/export/:user_id", s.handleExport)
	s.echo.POST("/import", s.handleImport)
	s.echo.POST("/maintenance/forget/:user_id", s.handleMaintenanceForget)
	s.echo.POST("/maintenance/cleanup", s.handleMaintenanceCleanup)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start runs the HTTP server on addr. Blocks until Shutdown or a listener
// error; returns http.ErrServerClosed on graceful shutdown, so callers can
// treat that one error value as a normal exit.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests within ctx's deadline and stops the
// listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

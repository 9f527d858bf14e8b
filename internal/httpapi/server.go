package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the run API over HTTP.
type Server struct {
	echo    *echo.Echo
	manager *Manager
	logger  *zap.Logger
	addr    string
}

// ServerOptions configures the HTTP server. There is deliberately no
// write timeout: SSE responses stay open for the lifetime of a run.
type ServerOptions struct {
	Addr        string
	ReadTimeout time.Duration
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(manager *Manager, logger *zap.Logger, opts ServerOptions) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = opts.ReadTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		manager: manager,
		logger:  logger,
		addr:    opts.Addr,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleStartRun)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.POST("/runs/:id/stop", s.handleStopRun)
	v1.GET("/runs/:id/events", s.handleRunEvents)
}

// Echo returns the underlying echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// StartRunRequest is the request body for POST /api/v1/runs.
type StartRunRequest struct {
	Goal string `json:"goal"`
}

// StartRunResponse is the response body for POST /api/v1/runs.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunResponse is the response body for GET /api/v1/runs/:id.
type RunResponse struct {
	RunID  string `json:"run_id"`
	Goal   string `json:"goal"`
	Status string `json:"status"`
	Report any    `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStartRun(c echo.Context) error {
	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Goal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal field is required")
	}

	runID, err := s.manager.StartRun(c.Request().Context(), req.Goal)
	if err != nil {
		s.logger.Error("starting run", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start run")
	}

	return c.JSON(http.StatusAccepted, StartRunResponse{RunID: runID, Status: StatusRunning})
}

func (s *Server) handleGetRun(c echo.Context) error {
	state, err := s.manager.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}

	resp := RunResponse{
		RunID:  state.ID,
		Goal:   state.Goal,
		Status: state.Status,
	}
	if state.Report != nil {
		resp.Report = state.Report
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStopRun(c echo.Context) error {
	if err := s.manager.StopRun(c.Param("id")); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to stop run")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

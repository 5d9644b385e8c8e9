// Package httpapi exposes the orchestration service over HTTP:
// synchronous and asynchronous request submission, job polling, health,
// and Prometheus metrics.
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

	"github.com/halcyonlabs/admind/internal/orchestrator"
)

// Server provides the HTTP front end for admind.
type Server struct {
	echo    *echo.Echo
	service *orchestrator.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server around an orchestration service.
func NewServer(service *orchestrator.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("orchestration service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8710,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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
		service: service,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/requests", s.handleProcessRequest)
	v1.POST("/requests/async", s.handleSubmitAsync)
	v1.GET("/jobs/:id", s.handlePollJob)
}

// SubmitRequest is the request body for both submission endpoints.
type SubmitRequest struct {
	Text      string            `json:"text"`
	Initiator string            `json:"initiator"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SubmitAsyncResponse is the response body for POST /api/v1/requests/async.
type SubmitAsyncResponse struct {
	JobID string `json:"job_id"`
}

// JobResponse is the response body for GET /api/v1/jobs/:id.
type JobResponse struct {
	JobID  string                 `json:"job_id"`
	Status orchestrator.JobStatus `json:"status"`
	Result *orchestrator.Result   `json:"result,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleProcessRequest(c echo.Context) error {
	req, err := s.bindSubmit(c)
	if err != nil {
		return err
	}

	result := s.service.ProcessRequest(c.Request().Context(), req)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

func (s *Server) handleSubmitAsync(c echo.Context) error {
	req, err := s.bindSubmit(c)
	if err != nil {
		return err
	}

	jobID, err := s.service.SubmitAsync(req)
	switch {
	case errors.Is(err, orchestrator.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, orchestrator.ErrQueueFull):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, orchestrator.ErrServiceClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusAccepted, SubmitAsyncResponse{JobID: jobID})
}

func (s *Server) handlePollJob(c echo.Context) error {
	jobID := c.Param("id")

	status, result, err := s.service.PollResult(jobID)
	if errors.Is(err, orchestrator.ErrUnknownJob) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, JobResponse{
		JobID:  jobID,
		Status: status,
		Result: result,
	})
}

func (s *Server) bindSubmit(c echo.Context) (orchestrator.Request, error) {
	var body SubmitRequest
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid request body", zap.Error(err))
		return orchestrator.Request{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Text == "" {
		return orchestrator.Request{}, echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	return orchestrator.Request{
		Text:        body.Text,
		Initiator:   body.Initiator,
		SubmittedAt: time.Now(),
		Metadata:    body.Metadata,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

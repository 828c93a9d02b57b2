// Package httpapi provides the HTTP API for pulsed.
//
// It exposes the update feed, weekly summaries, client tasks, session
// notifications, and a per-client SSE stream of change events.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/digest"
	"github.com/fyrsmithlabs/pulsed/internal/lifecycle"
	"github.com/fyrsmithlabs/pulsed/internal/notify"
	"github.com/fyrsmithlabs/pulsed/internal/store"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for pulsed.
type Server struct {
	echo       *echo.Echo
	records    store.RecordStore
	manager    *lifecycle.Manager
	generator  *digest.Generator
	hub        *notify.Hub
	subscriber *stream.Subscriber
	logger     *zap.Logger
	config     *Config
}

// NewServer creates a new HTTP server. The subscriber may be nil, in
// which case the SSE endpoint reports the stream as unavailable.
func NewServer(records store.RecordStore, manager *lifecycle.Manager, generator *digest.Generator, hub *notify.Hub, subscriber *stream.Subscriber, logger *zap.Logger, cfg *Config) (*Server, error) {
	if records == nil {
		return nil, fmt.Errorf("record store cannot be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("lifecycle manager cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("digest generator cannot be nil")
	}
	if hub == nil {
		return nil, fmt.Errorf("notification hub cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9180}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		records:    records,
		manager:    manager,
		generator:  generator,
		hub:        hub,
		subscriber: subscriber,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	// Update feed
	v1.POST("/clients/:clientID/updates", s.handleSubmitUpdate)
	v1.GET("/clients/:clientID/updates", s.handleListUpdates)
	v1.PATCH("/updates/:id/approval", s.handleSetApproval)
	v1.POST("/suggestions/:draftID/accept-refined", s.handleAcceptRefined)
	v1.POST("/suggestions/:draftID/accept-routine", s.handleAcceptRoutine)
	v1.DELETE("/suggestions/:draftID", s.handleDiscardSuggestion)

	// Weekly summaries
	v1.POST("/clients/:clientID/summaries", s.handleGenerateSummary)
	v1.GET("/clients/:clientID/summaries", s.handleListSummaries)

	// Client tasks
	v1.POST("/clients/:clientID/tasks", s.handleCreateTask)
	v1.GET("/clients/:clientID/tasks", s.handleListTasks)
	v1.PATCH("/tasks/:id", s.handlePatchTask)

	// Change-event stream
	v1.GET("/clients/:clientID/events", s.handleEvents)

	// Session notifications
	sess := v1.Group("/sessions/:sessionID")
	sess.GET("/notifications", s.handleListNotifications)
	sess.POST("/notifications", s.handlePushNotification)
	sess.POST("/notifications/read-all", s.handleMarkAllRead)
	sess.POST("/notifications/:id/read", s.handleMarkRead)
	sess.DELETE("/notifications/:id", s.handleClearNotification)
	sess.DELETE("/notifications", s.handleClearAll)
	sess.GET("/settings", s.handleGetSettings)
	sess.PATCH("/settings", s.handlePatchSettings)
	sess.POST("/permission", s.handleRequestPermission)
	sess.DELETE("", s.handleEndSession)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
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

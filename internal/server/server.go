// Package server exposes the alert ingestion and dashboard data endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/alerts"
	"github.com/srg/posturewatch/internal/cloudsync"
	"github.com/srg/posturewatch/internal/metrics"
)

const (
	DefaultAddr = "0.0.0.0:5000"

	// BodyLimit caps request bodies; alerts are a few dozen bytes
	BodyLimit = "64K"
)

// Fetcher runs one cloud sync iteration on demand
type Fetcher interface {
	FetchOnce(ctx context.Context) cloudsync.Result
}

// Config holds the server dependencies
type Config struct {
	Addr     string
	Buffer   *alerts.Buffer
	Fetcher  Fetcher
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server serves the alert endpoints over echo.
type Server struct {
	echo    *echo.Echo
	addr    string
	buffer  *alerts.Buffer
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// StatusResponse is the generic status body
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AlertResponse is returned for an accepted alert
type AlertResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// AlertsResponse lists the buffered alerts, newest first
type AlertsResponse struct {
	Alerts []string `json:"alerts"`
}

// New creates the server and registers its routes.
func New(cfg Config, logger *logrus.Logger) (*Server, error) {
	if cfg.Buffer == nil {
		return nil, fmt.Errorf("alert buffer cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(BodyLimit))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"uri":        c.Request().RequestURI,
				"status":     c.Response().Status,
				"duration":   time.Since(start),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Debug("http request")
			return err
		}
	})

	s := &Server{
		echo:    e,
		addr:    cfg.Addr,
		buffer:  cfg.Buffer,
		fetcher: cfg.Fetcher,
		metrics: cfg.Metrics,
		logger:  logger,
	}

	e.GET("/health", s.handleHealth)
	e.POST("/alert", s.handleAlert)
	e.GET("/get_alerts_data", s.handleAlertsData)
	e.GET("/fetch_drive_csvs_manual", s.handleManualFetch)
	if cfg.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// handleAlert accepts {"timestamp","message"} and buffers its display string.
// Any non-empty JSON object is accepted; missing fields render as placeholders.
func (s *Server) handleAlert(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			s.logger.WithError(err).Warn("Rejected alert request body")
			return he
		}
		s.logger.WithError(err).Error("Failed to read alert request")
		return c.JSON(http.StatusInternalServerError, StatusResponse{Status: "error", Message: err.Error()})
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || len(data) == 0 {
		s.logger.Warn("Received POST to /alert with no JSON data")
		return c.JSON(http.StatusBadRequest, StatusResponse{Status: "error", Message: "No JSON data received"})
	}

	s.logger.WithField("data", data).Info("New alert received")
	s.buffer.Push(alerts.Format(field(data, "timestamp"), field(data, "message")))
	s.metrics.AlertReceived()

	return c.JSON(http.StatusOK, AlertResponse{Status: "success", Message: "Alert received", Data: data})
}

func field(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (s *Server) handleAlertsData(c echo.Context) error {
	return c.JSON(http.StatusOK, AlertsResponse{Alerts: s.buffer.Snapshot()})
}

func (s *Server) handleManualFetch(c echo.Context) error {
	s.logger.Info("Manual request received to fetch CSVs")
	if s.fetcher == nil {
		return c.JSON(http.StatusInternalServerError, StatusResponse{Status: cloudsync.StatusError, Message: "Cloud sync is not configured."})
	}

	res := s.fetcher.FetchOnce(c.Request().Context())
	status := http.StatusOK
	if res.Status != cloudsync.StatusSuccess {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, res)
}

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.addr).Info("Starting alert server")
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down alert server")
	return s.echo.Shutdown(ctx)
}

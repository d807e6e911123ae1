package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer exposes /metrics and /health for processes that have no
// other HTTP surface (record, upload).
type MetricsServer struct {
	echo   *echo.Echo
	addr   string
	logger *logrus.Logger
}

func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger *logrus.Logger) *MetricsServer {
	if logger == nil {
		logger = logrus.New()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &MetricsServer{echo: e, addr: addr, logger: logger}
}

func (s *MetricsServer) Handler() http.Handler {
	return s.echo
}

func (s *MetricsServer) Start() error {
	s.logger.WithField("addr", s.addr).Info("Serving metrics")
	return s.echo.Start(s.addr)
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

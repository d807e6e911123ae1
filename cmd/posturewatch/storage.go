package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/groutine"
	"github.com/srg/posturewatch/internal/server"
	"github.com/srg/posturewatch/internal/storage"
	"github.com/srg/posturewatch/pkg/config"
)

// newProvider returns a local directory provider when drive.local_root is set
// and a Google Drive provider otherwise.
func newProvider(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Provider, error) {
	if cfg.Drive.LocalRoot != "" {
		logger.WithField("root", cfg.Drive.LocalRoot).Info("Using local directory as remote storage")
		return storage.NewDirProvider(cfg.Drive.LocalRoot)
	}
	return storage.NewDriveProvider(ctx, storage.DriveOptions{
		CredentialsFile: cfg.Drive.CredentialsFile,
		TokenFile:       cfg.Drive.TokenFile,
	}, logger)
}

// startMetricsServer serves reg on addr until the returned stop function is
// called. An empty addr disables it.
func startMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry, logger *logrus.Logger) func() {
	if addr == "" {
		return func() {}
	}
	srv := server.NewMetricsServer(addr, reg, logger)
	groutine.Go(ctx, "metrics-server", func(ctx context.Context) {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	})
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/srg/posturewatch/internal/alerts"
	"github.com/srg/posturewatch/internal/cloudsync"
	"github.com/srg/posturewatch/internal/groutine"
	"github.com/srg/posturewatch/internal/metrics"
	"github.com/srg/posturewatch/internal/server"
	"github.com/srg/posturewatch/internal/storage"
	"github.com/srg/posturewatch/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alert server and the background cloud fetcher",
	Long: `Accepts alerts on POST /alert, keeps the most recent ones for
GET /get_alerts_data, and periodically downloads new CSV files from the remote
folder. GET /fetch_drive_csvs_manual runs one fetch immediately.

Examples:
  posturewatch serve
  posturewatch serve --addr 127.0.0.1:5000 --folder-id 1eT3I5RGrzFJ --download-dir ./downloaded_csvs`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	defineServeFlags(serveCmd)
}

func defineServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "Listen address")
	cmd.Flags().String("folder-id", "", "Remote folder to mirror")
	cmd.Flags().String("download-dir", "", "Local directory for downloaded CSV files")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Serve.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("folder-id") {
		cfg.Serve.FolderID, _ = flags.GetString("folder-id")
	}
	if flags.Changed("download-dir") {
		cfg.Serve.DownloadDir, _ = flags.GetString("download-dir")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := cfg.Serve
	if err := os.MkdirAll(sc.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	if abs, err := filepath.Abs(sc.DownloadDir); err == nil {
		logger.WithField("dir", abs).Info("Remote CSV files will be saved locally")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// storage is connected lazily: a failed sign-in is retried by every fetch,
	// background or manual. The provider keeps the process context because its
	// token source outlives the request that happened to build it.
	loop := cloudsync.NewWithConnector(cloudsync.Options{
		FolderID:     sc.FolderID,
		DownloadDir:  sc.DownloadDir,
		InitialDelay: sc.InitialDelay,
		Interval:     sc.Interval,
	}, func(context.Context) (storage.Provider, error) {
		return newProvider(ctx, cfg, logger)
	}, m, logger)
	if err := loop.Connect(ctx); err != nil {
		logger.WithError(err).Error("Failed to initialise remote storage, retrying on each fetch")
	} else {
		logger.Info("Remote storage initialised")
	}
	loop.Start(ctx)

	srv, err := server.New(server.Config{
		Addr:     sc.Addr,
		Buffer:   alerts.NewBuffer(sc.AlertCapacity),
		Fetcher:  loop,
		Metrics:  m,
		Gatherer: reg,
	}, logger)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	groutine.Go(ctx, "alert-server", func(ctx context.Context) {
		serveErr <- srv.Start()
	})

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	loop.Stop(sc.JoinTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("failed to shut down server: %w", shutdownErr)
	}
	return err
}

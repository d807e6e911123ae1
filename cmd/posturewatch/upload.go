package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/srg/posturewatch/internal/metrics"
	"github.com/srg/posturewatch/internal/uploader"
	"github.com/srg/posturewatch/pkg/config"
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload CSV sessions from a directory as they are written",
	Long: `Watches one directory (not its sub-directories) and uploads every .csv file
that is created or saved. Repeated events for the same file within the debounce
window are ignored; each upload waits a short settle delay first.

Examples:
  posturewatch upload --watch-dir ./sessions --folder-id 1eT3I5RGrzFJ
  posturewatch upload --config posturewatch.yaml`,
	Args: cobra.NoArgs,
	RunE: runUpload,
}

func init() {
	defineUploadFlags(uploadCmd)
}

func defineUploadFlags(cmd *cobra.Command) {
	cmd.Flags().String("watch-dir", "", "Directory to watch for .csv files")
	cmd.Flags().String("folder-id", "", "Remote folder id; empty uploads to the storage root")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func applyUploadFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("watch-dir") {
		cfg.Upload.WatchDir, _ = flags.GetString("watch-dir")
	}
	if flags.Changed("folder-id") {
		cfg.Upload.FolderID, _ = flags.GetString("folder-id")
	}
	if flags.Changed("metrics-addr") {
		cfg.Upload.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func runUpload(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyUploadFlags(cmd, cfg)
	if err := cfg.ValidateUpload(); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Authenticating with remote storage...")
	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	stopMetrics := startMetricsServer(ctx, cfg.Upload.MetricsAddr, reg, logger)
	defer stopMetrics()

	w, err := uploader.New(uploader.Options{
		Dir:      cfg.Upload.WatchDir,
		FolderID: cfg.Upload.FolderID,
		Debounce: cfg.Upload.Debounce,
		Settle:   cfg.Upload.Settle,
	}, provider, m, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Run(ctx)
	logger.Info("Monitoring stopped")
	return err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/posturewatch/internal/csvsink"
	"github.com/srg/posturewatch/internal/device"
	goble "github.com/srg/posturewatch/internal/device/go-ble"
	"github.com/srg/posturewatch/internal/metrics"
	"github.com/srg/posturewatch/internal/relay"
	"github.com/srg/posturewatch/internal/telemetry"
	"github.com/srg/posturewatch/pkg/config"
)

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record sensor rows to CSV and relay posture alerts",
	Long: `Scans for the wearable by name, subscribes to its sensor and alert
characteristics and runs until Ctrl+C or until the device disconnects.

Every sensor row is appended to a new CSV file named after the session start
time. Alerts are printed and forwarded to the alert server.

Examples:
  posturewatch record
  posturewatch record --device NiclaSenseCSV --output-dir ./sessions
  posturewatch record --relay-url http://dashboard.local:5000/alert`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	defineRecordFlags(recordCmd)
}

func defineRecordFlags(cmd *cobra.Command) {
	cmd.Flags().String("device", "", "Advertised device name")
	cmd.Flags().String("output-dir", "", "Directory for session CSV files")
	cmd.Flags().String("relay-url", "", "Alert endpoint URL")
	cmd.Flags().Duration("scan-timeout", 0, "How long to scan for the device")
	cmd.Flags().Duration("connect-timeout", 0, "Connection timeout")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

// applyRecordFlags overrides configuration with explicitly set flags.
func applyRecordFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Record.DeviceName, _ = flags.GetString("device")
	}
	if flags.Changed("output-dir") {
		cfg.Record.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("relay-url") {
		cfg.Record.RelayURL, _ = flags.GetString("relay-url")
	}
	if flags.Changed("scan-timeout") {
		cfg.Record.ScanTimeout, _ = flags.GetDuration("scan-timeout")
	}
	if flags.Changed("connect-timeout") {
		cfg.Record.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
	}
	if flags.Changed("metrics-addr") {
		cfg.Record.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func runRecord(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRecordFlags(cmd, cfg)
	if err := cfg.ValidateRecord(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	stopMetrics := startMetricsServer(ctx, cfg.Record.MetricsAddr, reg, logger)
	defer stopMetrics()

	central, err := goble.NewCentral(logger)
	if err != nil {
		return err
	}
	rc := cfg.Record
	client := telemetry.NewClient(central, telemetry.ClientOptions{
		Channels: telemetry.ChannelIDs{
			Service: rc.ServiceUUID,
			Sensor:  rc.SensorUUID,
			Alert:   rc.AlertUUID,
		},
		ConnectTimeout: rc.ConnectTimeout,
	}, logger)

	countdown := NewCountdown(os.Stderr, fmt.Sprintf("Scanning for %s", rc.DeviceName), rc.ScanTimeout)
	countdown.Start()
	adv, err := client.Discover(ctx, rc.DeviceName, rc.ScanTimeout)
	countdown.Stop()
	if err != nil {
		return err
	}

	sink, err := csvsink.Open(rc.OutputDir, rc.FilePrefix, time.Now())
	if err != nil {
		return err
	}
	router := telemetry.NewRouter(telemetry.RouterOptions{
		Sink:      sink,
		Relay:     relay.New(relay.Options{URL: rc.RelayURL, Timeout: rc.RelayTimeout}, logger),
		Metrics:   m,
		QueueSize: rc.QueueSize,
	}, logger)

	session, err := client.ConnectAndSubscribe(ctx, adv, router)
	if err != nil {
		if closeErr := router.Close(telemetry.DefaultDrainTimeout); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close session file")
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "Connected to %s. Recording to %s. Press Ctrl+C to stop...\n", session.Address(), sink.Path())

	waitErr := session.Wait(ctx)
	closeErr := session.Close()
	logger.WithFields(logrus.Fields{
		"file": sink.Path(),
		"rows": sink.Rows(),
	}).Info("Session closed")

	if errors.Is(waitErr, device.ErrNotConnected) {
		return ErrConnectionLost
	}
	return closeErr
}

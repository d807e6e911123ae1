package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/posturewatch/pkg/config"
)

func freshCmd(define func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	define(cmd)
	return cmd
}

func TestApplyRecordFlags(t *testing.T) {
	t.Run("unset flags keep configured values", func(t *testing.T) {
		cmd := freshCmd(defineRecordFlags)
		require.NoError(t, cmd.ParseFlags(nil))

		cfg := config.DefaultConfig()
		cfg.Record.DeviceName = "FromFile"
		applyRecordFlags(cmd, cfg)

		assert.Equal(t, "FromFile", cfg.Record.DeviceName, "device name MUST NOT be reset by an unset flag")
		assert.Equal(t, 10*time.Second, cfg.Record.ScanTimeout)
	})

	t.Run("set flags override", func(t *testing.T) {
		cmd := freshCmd(defineRecordFlags)
		require.NoError(t, cmd.ParseFlags([]string{
			"--device", "Bench",
			"--output-dir", "/tmp/sessions",
			"--relay-url", "http://10.0.0.2:5000/alert",
			"--scan-timeout", "3s",
		}))

		cfg := config.DefaultConfig()
		applyRecordFlags(cmd, cfg)

		assert.Equal(t, "Bench", cfg.Record.DeviceName)
		assert.Equal(t, "/tmp/sessions", cfg.Record.OutputDir)
		assert.Equal(t, "http://10.0.0.2:5000/alert", cfg.Record.RelayURL)
		assert.Equal(t, 3*time.Second, cfg.Record.ScanTimeout)
	})
}

func TestApplyUploadFlags(t *testing.T) {
	cmd := freshCmd(defineUploadFlags)
	require.NoError(t, cmd.ParseFlags([]string{"--watch-dir", "/data", "--folder-id", "abc"}))

	cfg := config.DefaultConfig()
	cfg.Upload.MetricsAddr = ":9100"
	applyUploadFlags(cmd, cfg)

	assert.Equal(t, "/data", cfg.Upload.WatchDir)
	assert.Equal(t, "abc", cfg.Upload.FolderID)
	assert.Equal(t, ":9100", cfg.Upload.MetricsAddr, "metrics address MUST be kept when the flag is unset")
}

func TestApplyServeFlags(t *testing.T) {
	cmd := freshCmd(defineServeFlags)
	require.NoError(t, cmd.ParseFlags([]string{"--addr", "127.0.0.1:8080", "--download-dir", "/srv/csv"}))

	cfg := config.DefaultConfig()
	cfg.Serve.FolderID = "configured"
	applyServeFlags(cmd, cfg)

	assert.Equal(t, "127.0.0.1:8080", cfg.Serve.Addr)
	assert.Equal(t, "/srv/csv", cfg.Serve.DownloadDir)
	assert.Equal(t, "configured", cfg.Serve.FolderID)
}

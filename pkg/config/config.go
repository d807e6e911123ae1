package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/device"
)

// EnvPrefix marks environment overrides, e.g. POSTUREWATCH_RECORD_DEVICE_NAME
const EnvPrefix = "POSTUREWATCH_"

// Config holds application configuration
type Config struct {
	LogLevel logrus.Level `koanf:"log_level"`
	Record   RecordConfig `koanf:"record"`
	Upload   UploadConfig `koanf:"upload"`
	Serve    ServeConfig  `koanf:"serve"`
	Drive    DriveConfig  `koanf:"drive"`
}

// RecordConfig configures the BLE receiver
type RecordConfig struct {
	DeviceName     string        `koanf:"device_name" default:"NiclaSenseCSV"`
	ServiceUUID    string        `koanf:"service_uuid" default:"19B10000-E8F2-537E-4F6C-D104768A1214"`
	SensorUUID     string        `koanf:"sensor_uuid" default:"19B10001-E8F2-537E-4F6C-D104768A1214"`
	AlertUUID      string        `koanf:"alert_uuid" default:"19B10002-E8F2-537E-4F6C-D104768A1214"`
	ScanTimeout    time.Duration `koanf:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" default:"30s"`
	OutputDir      string        `koanf:"output_dir" default:"."`
	FilePrefix     string        `koanf:"file_prefix" default:"nicla_orientation_"`
	RelayURL       string        `koanf:"relay_url" default:"http://127.0.0.1:5000/alert"`
	RelayTimeout   time.Duration `koanf:"relay_timeout" default:"5s"`
	QueueSize      int           `koanf:"queue_size" default:"256"`
	MetricsAddr    string        `koanf:"metrics_addr"`
}

// UploadConfig configures the CSV auto-uploader
type UploadConfig struct {
	WatchDir    string        `koanf:"watch_dir" default:"."`
	FolderID    string        `koanf:"folder_id"`
	Debounce    time.Duration `koanf:"debounce" default:"2s"`
	Settle      time.Duration `koanf:"settle" default:"1s"`
	MetricsAddr string        `koanf:"metrics_addr"`
}

// ServeConfig configures the alert server and the background fetcher
type ServeConfig struct {
	Addr            string        `koanf:"addr" default:"0.0.0.0:5000"`
	AlertCapacity   int           `koanf:"alert_capacity" default:"3"`
	FolderID        string        `koanf:"folder_id"`
	DownloadDir     string        `koanf:"download_dir" default:"downloaded_csvs"`
	InitialDelay    time.Duration `koanf:"initial_delay" default:"10s"`
	Interval        time.Duration `koanf:"interval" default:"20s"`
	JoinTimeout     time.Duration `koanf:"join_timeout" default:"5s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" default:"5s"`
}

// DriveConfig selects and configures the remote storage. When LocalRoot is
// set a local directory stands in for Google Drive.
type DriveConfig struct {
	CredentialsFile string `koanf:"credentials_file" default:"config/credentials.json"`
	TokenFile       string `koanf:"token_file" default:"config/token.json"`
	LocalRoot       string `koanf:"local_root"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load starts from the defaults, applies the YAML file at path (if path is
// not empty) and then POSTUREWATCH_ environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// POSTUREWATCH_RECORD_DEVICE_NAME -> record.device_name
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(key, "_", 2)
		if len(parts) == 1 || parts[0] == "log" {
			return key
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ValidateRecord checks the settings used by the record command.
func (c *Config) ValidateRecord() error {
	r := c.Record
	var errs []error
	if strings.TrimSpace(r.DeviceName) == "" {
		errs = append(errs, errors.New("record.device_name is required"))
	}
	if _, err := device.ValidateUUID(r.ServiceUUID, r.SensorUUID, r.AlertUUID); err != nil {
		errs = append(errs, fmt.Errorf("record uuids: %w", err))
	}
	if u, err := url.Parse(r.RelayURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("record.relay_url %q is not an http(s) URL", r.RelayURL))
	}
	errs = append(errs,
		positive("record.scan_timeout", r.ScanTimeout),
		positive("record.connect_timeout", r.ConnectTimeout),
		positive("record.relay_timeout", r.RelayTimeout),
	)
	if r.QueueSize <= 0 {
		errs = append(errs, errors.New("record.queue_size must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateUpload checks the settings used by the upload command.
func (c *Config) ValidateUpload() error {
	u := c.Upload
	var errs []error
	if u.WatchDir == "" {
		errs = append(errs, errors.New("upload.watch_dir is required"))
	}
	errs = append(errs,
		positive("upload.debounce", u.Debounce),
		positive("upload.settle", u.Settle),
		c.validateDrive(),
	)
	return errors.Join(errs...)
}

// ValidateServe checks the settings used by the serve command.
func (c *Config) ValidateServe() error {
	s := c.Serve
	var errs []error
	if s.Addr == "" {
		errs = append(errs, errors.New("serve.addr is required"))
	}
	if s.DownloadDir == "" {
		errs = append(errs, errors.New("serve.download_dir is required"))
	}
	if s.AlertCapacity <= 0 {
		errs = append(errs, errors.New("serve.alert_capacity must be positive"))
	}
	if s.InitialDelay < 0 {
		errs = append(errs, errors.New("serve.initial_delay cannot be negative"))
	}
	errs = append(errs,
		positive("serve.interval", s.Interval),
		positive("serve.join_timeout", s.JoinTimeout),
		positive("serve.shutdown_timeout", s.ShutdownTimeout),
		c.validateDrive(),
	)
	return errors.Join(errs...)
}

func (c *Config) validateDrive() error {
	if c.Drive.LocalRoot != "" {
		return nil
	}
	if c.Drive.CredentialsFile == "" || c.Drive.TokenFile == "" {
		return errors.New("drive.credentials_file and drive.token_file are required unless drive.local_root is set")
	}
	return nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// Package cloudsync periodically mirrors the CSV objects of a remote folder
// into a local download directory.
package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/groutine"
	"github.com/srg/posturewatch/internal/metrics"
	"github.com/srg/posturewatch/internal/storage"
)

const (
	DefaultInitialDelay = 10 * time.Second
	DefaultInterval     = 20 * time.Second
	DefaultJoinTimeout  = 5 * time.Second
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result summarises one fetch iteration. It is also the body of the manual
// fetch endpoint.
type Result struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	DownloadedCount int      `json:"downloaded_files_count"`
	DownloadedFiles []string `json:"downloaded_file_names"`
}

// Connector builds the storage provider. It is called before a fetch while no
// provider is available, so an authentication failure only costs that fetch.
type Connector func(ctx context.Context) (storage.Provider, error)

// Options configures a Loop
type Options struct {
	FolderID     string
	DownloadDir  string
	InitialDelay time.Duration
	Interval     time.Duration
}

// Loop downloads every remote CSV whose name is not yet present locally.
// A file is never downloaded twice under the same name, even if its remote
// content changed.
type Loop struct {
	opts     Options
	connect  Connector
	metrics  *metrics.Metrics
	logger   *logrus.Logger

	// serialises FetchOnce between the background loop and manual triggers;
	// also guards provider
	fetchMu  sync.Mutex
	provider storage.Provider

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers *groutine.Group
}

// New creates a loop over a fixed provider. A nil provider makes every
// iteration report an authentication error.
func New(opts Options, provider storage.Provider, m *metrics.Metrics, logger *logrus.Logger) *Loop {
	l := NewWithConnector(opts, nil, m, logger)
	l.provider = provider
	return l
}

// NewWithConnector creates a loop that obtains its provider through connect,
// retrying on every fetch until it succeeds. A provider that later reports
// storage.ErrUnavailable is discarded and rebuilt on the next fetch.
func NewWithConnector(opts Options, connect Connector, m *metrics.Metrics, logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Loop{opts: opts, connect: connect, metrics: m, logger: logger}
}

// Connect makes sure a provider is available, building it if needed.
func (l *Loop) Connect(ctx context.Context) error {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()
	_, err := l.currentProvider(ctx)
	return err
}

func (l *Loop) currentProvider(ctx context.Context) (storage.Provider, error) {
	if l.provider != nil {
		return l.provider, nil
	}
	if l.connect == nil {
		return nil, storage.ErrUnavailable
	}
	p, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storage.ErrUnavailable
	}
	l.provider = p
	return p, nil
}

// FetchOnce performs a single list-and-download pass. Per-file failures are
// logged and skipped.
func (l *Loop) FetchOnce(ctx context.Context) Result {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()

	res := l.fetch(ctx)
	if res.Status == StatusSuccess {
		l.metrics.SyncIteration(metrics.ResultSuccess)
	} else {
		l.metrics.SyncIteration(metrics.ResultError)
	}
	return res
}

func (l *Loop) fetch(ctx context.Context) Result {
	l.logger.Info("Starting CSV fetch from remote storage")

	provider, err := l.currentProvider(ctx)
	if err != nil {
		l.logger.WithError(err).Error("Storage service unavailable, cannot fetch files")
		return errorResult("Failed to authenticate with Google Drive.")
	}
	if l.opts.FolderID == "" {
		l.logger.Error("Remote folder id is not configured")
		return errorResult("Google Drive folder ID not configured on server.")
	}

	files, err := provider.List(ctx, l.opts.FolderID, storage.CSVMimeType)
	if err != nil {
		l.logger.WithError(err).Error("Failed to list remote CSV files")
		if errors.Is(err, storage.ErrUnavailable) {
			if l.connect != nil {
				l.provider = nil
			}
			return errorResult("Failed to authenticate with Google Drive.")
		}
		return errorResult(fmt.Sprintf("Failed to list files: %v", err))
	}

	if len(files) == 0 {
		l.logger.Info("No CSV files found in the remote folder")
		return Result{Status: StatusSuccess, Message: "No new CSV files found.", DownloadedFiles: []string{}}
	}

	if err := os.MkdirAll(l.opts.DownloadDir, 0o755); err != nil {
		l.logger.WithError(err).Error("Failed to create download directory")
		return errorResult(fmt.Sprintf("Failed to create download directory: %v", err))
	}

	downloaded := []string{}
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}

		name, ok := SanitizeName(f.Name)
		log := l.logger.WithFields(logrus.Fields{"name": f.Name, "id": f.ID})
		if !ok {
			l.metrics.Download(metrics.ResultFailure)
			log.Warn("Skipping remote file with an unusable name")
			continue
		}

		local := filepath.Join(l.opts.DownloadDir, name)
		if _, err := os.Stat(local); err == nil {
			l.metrics.Download(metrics.ResultSkipped)
			log.Debug("File already exists locally, skipping download")
			continue
		}

		log.Info("Downloading file")
		if err := provider.Download(ctx, f.ID, local); err != nil {
			l.metrics.Download(metrics.ResultFailure)
			log.WithError(err).Error("Failed to download file")
			continue
		}
		l.metrics.Download(metrics.ResultSuccess)
		downloaded = append(downloaded, name)
	}

	message := "No new files were downloaded."
	if len(downloaded) > 0 {
		message = fmt.Sprintf("Successfully downloaded %d CSV file(s).", len(downloaded))
	}
	l.logger.Info(message)
	return Result{
		Status:          StatusSuccess,
		Message:         message,
		DownloadedCount: len(downloaded),
		DownloadedFiles: downloaded,
	}
}

func errorResult(message string) Result {
	return Result{Status: StatusError, Message: message, DownloadedFiles: []string{}}
}

// SanitizeName reduces a remote object name to a plain base name so it cannot
// escape the download directory.
func SanitizeName(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + filepath.FromSlash(name)))
	if base == "/" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", false
	}
	return base, true
}

// Run waits the initial delay, fetches, then fetches again every interval
// until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("Background fetcher started")
	defer l.logger.Info("Background fetcher stopped")

	if !sleep(ctx, l.opts.InitialDelay) {
		return
	}
	l.FetchOnce(ctx)

	for {
		l.logger.WithField("interval", l.opts.Interval).Debug("Background fetcher sleeping")
		if !sleep(ctx, l.opts.Interval) {
			return
		}
		l.FetchOnce(ctx)
	}
}

// Start runs the loop in a named goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.workers = &groutine.Group{}
	l.workers.Go(runCtx, "cloudsync", l.Run)
}

// Stop cancels the loop and waits up to timeout for it to exit. It reports
// whether the loop exited in time.
func (l *Loop) Stop(timeout time.Duration) bool {
	l.mu.Lock()
	cancel, workers := l.cancel, l.workers
	l.cancel, l.workers = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()
	if !workers.Wait(timeout) {
		l.logger.WithField("timeout", timeout).Warn("Background fetcher did not stop in time")
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package uploader watches a local directory and uploads session CSV files to
// remote storage as they are created or saved.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/metrics"
	"github.com/srg/posturewatch/internal/storage"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultSettle   = 1 * time.Second
)

// ErrWatchDirMissing is returned when the watch directory does not exist
var ErrWatchDirMissing = errors.New("watch directory does not exist")

// Outcome is what happened to a single file event
type Outcome int

const (
	OutcomeIgnored   Outcome = iota // not a .csv file, or a directory
	OutcomeDebounced                // within the debounce window of the last attempt
	OutcomeSkipped                  // empty or vanished after settling
	OutcomeUploaded
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDebounced:
		return "debounced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options configures a Watcher
type Options struct {
	Dir      string
	FolderID string
	Debounce time.Duration
	Settle   time.Duration
	Now      func() time.Time
}

// Watcher uploads .csv files from one directory (non-recursive). Events are
// handled one at a time in arrival order.
type Watcher struct {
	opts     Options
	provider storage.Provider
	metrics  *metrics.Metrics
	logger   *logrus.Logger

	fsw  *fsnotify.Watcher
	last *hashmap.Map[string, time.Time]
}

// New validates the watch directory and registers it with fsnotify.
func New(opts Options, provider storage.Provider, m *metrics.Metrics, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	info, err := os.Stat(opts.Dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrWatchDirMissing, opts.Dir)
	}
	if opts.FolderID == "" {
		logger.Warn("Drive folder id is not set, files will be uploaded to the storage root")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsw.Add(opts.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", opts.Dir, err)
	}

	return &Watcher{
		opts:     opts,
		provider: provider,
		metrics:  m,
		logger:   logger,
		fsw:      fsw,
		last:     hashmap.New[string, time.Time](),
	}, nil
}

// Run processes filesystem events until ctx is cancelled or the watcher is
// closed. Upload errors are logged and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.WithField("dir", w.opts.Dir).Info("Monitoring directory for .csv files...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.HandleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Filesystem watcher error")
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// HandleEvent filters one fsnotify event and processes it.
func (w *Watcher) HandleEvent(ctx context.Context, ev fsnotify.Event) Outcome {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return OutcomeIgnored
	}
	kind := "modified"
	if ev.Has(fsnotify.Create) {
		kind = "created"
	}
	return w.Process(ctx, ev.Name, kind)
}

// Process applies the debounce window, waits for the file to settle and
// uploads it. The attempt time is recorded whatever the result.
func (w *Watcher) Process(ctx context.Context, path, kind string) Outcome {
	if !IsCSV(path) {
		return OutcomeIgnored
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return OutcomeIgnored
	}

	now := w.opts.Now()
	if prev, ok := w.last.Get(path); ok && now.Sub(prev) < w.opts.Debounce {
		w.metrics.Upload(metrics.ResultDebounced)
		return OutcomeDebounced
	}
	w.last.Set(path, now)

	log := w.logger.WithField("file", path)
	log.Infof("CSV file %s", kind)

	if !w.settle(ctx) {
		return OutcomeCancelled
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		w.metrics.Upload(metrics.ResultSkipped)
		log.Warn("File is empty or no longer exists, skipping upload")
		return OutcomeSkipped
	}

	id, err := w.provider.Upload(ctx, path, w.opts.FolderID)
	if err != nil {
		w.metrics.Upload(metrics.ResultFailure)
		log.WithError(err).Error("Failed to upload file")
		return OutcomeFailed
	}

	w.metrics.Upload(metrics.ResultSuccess)
	log.WithField("id", id).Info("File uploaded")
	return OutcomeUploaded
}

// LastProcessed returns when path was last attempted.
func (w *Watcher) LastProcessed(path string) (time.Time, bool) {
	return w.last.Get(path)
}

func (w *Watcher) settle(ctx context.Context) bool {
	timer := time.NewTimer(w.opts.Settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsCSV reports whether path has a .csv extension, ignoring case.
func IsCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

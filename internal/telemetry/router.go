package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/alerts"
	"github.com/srg/posturewatch/internal/groutine"
	"github.com/srg/posturewatch/internal/metrics"
)

const (
	// HeaderMarker identifies the header notification sent after connect
	HeaderMarker = "timestamp"

	// MinRowFields is the minimum field count of a data row
	MinRowFields = 4

	DefaultQueueSize = 256
)

// Sink receives decoded sensor rows. *csvsink.Sink implements it.
type Sink interface {
	WriteHeader(fields []string) (bool, error)
	WriteRow(fields []string) error
	HeaderWritten() bool
	Path() string
	Close() error
}

// AlertSender forwards accepted alerts. *relay.Relay implements it.
type AlertSender interface {
	Send(ctx context.Context, ev alerts.Event) error
}

// RouterOptions configures a Router
type RouterOptions struct {
	Sink      Sink
	Relay     AlertSender
	Metrics   *metrics.Metrics
	Console   io.Writer
	QueueSize int
	Now       func() time.Time
}

// alertNotification is an alert payload stamped with its arrival time
type alertNotification struct {
	at      time.Time
	payload []byte
}

// Router turns raw notifications into CSV rows and relayed alerts.
//
// OnSensor and OnAlert only enqueue, so they are safe to call from the BLE
// notification callback. Each channel is drained by its own worker, which
// keeps per-channel order while a slow relay cannot stall the CSV path.
type Router struct {
	sink    Sink
	relay   AlertSender
	metrics *metrics.Metrics
	logger  *logrus.Logger
	console io.Writer
	alertFg *color.Color
	now     func() time.Time

	sensorQ *Queue[[]byte]
	alertQ  *Queue[alertNotification]

	workers   groutine.Group
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRouter creates a router. Workers are started with Start.
func NewRouter(opts RouterOptions, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		sink:    opts.Sink,
		relay:   opts.Relay,
		metrics: opts.Metrics,
		logger:  logger,
		console: opts.Console,
		alertFg: color.New(color.FgRed),
		now:     opts.Now,
		sensorQ: NewQueue[[]byte](opts.QueueSize),
		alertQ:  NewQueue[alertNotification](opts.QueueSize),
	}
}

// Start launches the sensor and alert workers.
func (r *Router) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.workers.Go(ctx, "telemetry-sensor", func(ctx context.Context) {
			for {
				payload, ok := r.sensorQ.Recv()
				if !ok {
					return
				}
				r.HandleSensor(payload)
			}
		})
		r.workers.Go(ctx, "telemetry-alert", func(ctx context.Context) {
			for {
				n, ok := r.alertQ.Recv()
				if !ok {
					return
				}
				r.handleAlert(ctx, n.at, n.payload)
			}
		})
	})
}

// OnSensor enqueues a sensor notification. The payload is copied.
func (r *Router) OnSensor(payload []byte) {
	if r.sensorQ.Send(append([]byte(nil), payload...)) {
		r.metrics.QueueDrop(metrics.ChannelSensor)
		r.logger.Warn("Sensor queue full, dropped oldest notification")
	}
}

// OnAlert stamps an alert notification with its arrival time and enqueues it.
// The payload is copied.
func (r *Router) OnAlert(payload []byte) {
	n := alertNotification{at: r.now(), payload: append([]byte(nil), payload...)}
	if r.alertQ.Send(n) {
		r.metrics.QueueDrop(metrics.ChannelAlert)
		r.logger.Warn("Alert queue full, dropped oldest notification")
	}
}

// Stop closes both queues and waits up to timeout for the workers to drain
// them. It reports whether the workers finished in time.
func (r *Router) Stop(timeout time.Duration) bool {
	finished := true
	r.stopOnce.Do(func() {
		r.sensorQ.Close()
		r.alertQ.Close()
		finished = r.workers.Wait(timeout)
		if !finished {
			r.logger.WithField("timeout", timeout).Warn("Telemetry workers did not drain in time")
		}
	})
	return finished
}

// HandleSensor decodes one sensor notification and appends it to the sink.
func (r *Router) HandleSensor(payload []byte) {
	if !utf8.Valid(payload) {
		r.metrics.InvalidPayload(metrics.ChannelSensor)
		r.logger.WithField("bytes", len(payload)).Warn("Dropping sensor notification: invalid UTF-8")
		return
	}

	text := string(payload)
	r.logger.WithField("data", text).Debug("Received")
	fields := strings.Split(strings.TrimSpace(text), ",")

	if !r.sink.HeaderWritten() && strings.Contains(text, HeaderMarker) {
		if _, err := r.sink.WriteHeader(fields); err != nil {
			r.logger.WithError(err).Error("Failed to write CSV header")
		}
		return
	}

	if len(fields) < MinRowFields {
		r.metrics.RowDropped()
		r.logger.WithField("fields", len(fields)).Debug("Dropping short sensor row")
		return
	}

	if err := r.sink.WriteRow(fields); err != nil {
		r.logger.WithError(err).Error("Failed to write CSV row")
		return
	}
	r.metrics.RowWritten()
}

// HandleAlert validates one alert notification received now and forwards it
// to the relay. Relay failures are logged and never propagate.
func (r *Router) HandleAlert(ctx context.Context, payload []byte) {
	r.handleAlert(ctx, r.now(), payload)
}

func (r *Router) handleAlert(ctx context.Context, receivedAt time.Time, payload []byte) {
	if !utf8.Valid(payload) {
		r.metrics.InvalidPayload(metrics.ChannelAlert)
		r.logger.WithField("bytes", len(payload)).Warn("Dropping alert notification: invalid UTF-8")
		return
	}

	message := string(payload)
	if !alerts.IsValid(message) {
		r.logger.WithField("data", message).Debug("Ignoring non-alert notification")
		return
	}

	ev := alerts.Event{OccurredAt: receivedAt, Message: message}
	_, _ = r.alertFg.Fprintln(r.console, ev.String())

	if r.relay == nil {
		return
	}
	if err := r.relay.Send(ctx, ev); err != nil {
		r.metrics.AlertRelayed(metrics.ResultFailure)
		r.logger.WithError(err).Error("Failed to send alert to server")
		return
	}
	r.metrics.AlertRelayed(metrics.ResultSuccess)
}

// Close stops the workers and closes the sink.
func (r *Router) Close(timeout time.Duration) error {
	r.Stop(timeout)
	if err := r.sink.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", r.sink.Path(), err)
	}
	return nil
}

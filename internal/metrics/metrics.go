// Package metrics holds the Prometheus collectors shared by the posturewatch
// components. Collectors are registered on a caller-supplied registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "posturewatch"

// Result labels
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultError     = "error"
	ResultSkipped   = "skipped"
	ResultDebounced = "debounced"
)

// Channel labels
const (
	ChannelSensor = "sensor"
	ChannelAlert  = "alert"
)

// Metrics is a nil-safe collection of counters. A nil *Metrics records nothing.
type Metrics struct {
	SensorRowsWritten prometheus.Counter
	SensorRowsDropped prometheus.Counter
	InvalidPayloads   *prometheus.CounterVec
	QueueDrops        *prometheus.CounterVec
	AlertsRelayed     *prometheus.CounterVec
	AlertsReceived    prometheus.Counter
	Uploads           *prometheus.CounterVec
	Downloads         *prometheus.CounterVec
	SyncIterations    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SensorRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_rows_written_total",
			Help:      "Sensor rows appended to the session CSV file.",
		}),
		SensorRowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_rows_dropped_total",
			Help:      "Sensor payloads with too few fields.",
		}),
		InvalidPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_payloads_total",
			Help:      "Notifications that were not valid UTF-8.",
		}, []string{"channel"}),
		QueueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_drops_total",
			Help:      "Notifications evicted from a full dispatch queue.",
		}, []string{"channel"}),
		AlertsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_relayed_total",
			Help:      "Alerts forwarded to the relay endpoint.",
		}, []string{"result"}),
		AlertsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_received_total",
			Help:      "Alerts accepted by the alert endpoint.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "CSV upload attempts by the file watcher.",
		}, []string{"result"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Remote CSV objects handled by the sync loop.",
		}, []string{"result"}),
		SyncIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_iterations_total",
			Help:      "Cloud sync iterations.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SensorRowsWritten,
		m.SensorRowsDropped,
		m.InvalidPayloads,
		m.QueueDrops,
		m.AlertsRelayed,
		m.AlertsReceived,
		m.Uploads,
		m.Downloads,
		m.SyncIterations,
	)
	return m
}

func (m *Metrics) RowWritten() {
	if m != nil {
		m.SensorRowsWritten.Inc()
	}
}

func (m *Metrics) RowDropped() {
	if m != nil {
		m.SensorRowsDropped.Inc()
	}
}

func (m *Metrics) InvalidPayload(channel string) {
	if m != nil {
		m.InvalidPayloads.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) QueueDrop(channel string) {
	if m != nil {
		m.QueueDrops.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) AlertRelayed(result string) {
	if m != nil {
		m.AlertsRelayed.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AlertReceived() {
	if m != nil {
		m.AlertsReceived.Inc()
	}
}

func (m *Metrics) Upload(result string) {
	if m != nil {
		m.Uploads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Download(result string) {
	if m != nil {
		m.Downloads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SyncIteration(result string) {
	if m != nil {
		m.SyncIterations.WithLabelValues(result).Inc()
	}
}

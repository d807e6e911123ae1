package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnSuppliedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RowWritten()
	m.RowWritten()
	m.RowDropped()
	m.InvalidPayload(ChannelAlert)
	m.QueueDrop(ChannelSensor)
	m.AlertRelayed(ResultFailure)
	m.AlertReceived()
	m.Upload(ResultDebounced)
	m.Download(ResultSkipped)
	m.SyncIteration(ResultError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SensorRowsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SensorRowsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidPayloads.WithLabelValues(ChannelAlert)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsRelayed.WithLabelValues(ResultFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AlertsRelayed.WithLabelValues(ResultSuccess)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RowWritten()
		m.RowDropped()
		m.InvalidPayload(ChannelSensor)
		m.QueueDrop(ChannelAlert)
		m.AlertRelayed(ResultSuccess)
		m.AlertReceived()
		m.Upload(ResultSuccess)
		m.Download(ResultSuccess)
		m.SyncIteration(ResultSuccess)
	})
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

func TestCounters(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SampleOK(pzem.Telemetry{Voltage: 230, Power: 100, PowerFactor: 0.9})
	m.SampleFailed()
	m.Published(nil)
	m.Published(errors.New("timeout"))
	m.Rendered(true)
	m.Rendered(false)
	m.Rendered(false)
	m.PageChanged()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sampleErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renders.WithLabelValues("full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.renders.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pageChanges))
	assert.Equal(t, 230.0, testutil.ToFloat64(m.reading.WithLabelValues("voltage")))
	assert.Equal(t, 0.9, testutil.ToFloat64(m.reading.WithLabelValues("power_factor")))
}

func TestSetConnected(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetConnected(LinkMQTT, true)
	m.SetConnected(LinkSensor, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected.WithLabelValues(LinkMQTT)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected.WithLabelValues(LinkSensor)))
}

func TestReuseRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m1, err := New(reg)
	require.NoError(t, err)
	m2, err := New(reg)
	require.NoError(t, err)

	m1.SampleFailed()
	m2.SampleFailed()
	assert.Equal(t, 2.0, testutil.ToFloat64(m1.sampleErrors), "second New shares the collectors")

	n, err := testutil.GatherAndCount(reg, "energy_monitor_sample_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

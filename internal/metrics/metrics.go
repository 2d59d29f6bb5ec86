// Package metrics exposes loop counters and the latest reading as
// Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

const namespace = "energy_monitor"

// Link names for the connected gauge.
const (
	LinkSensor  = "sensor"
	LinkMQTT    = "mqtt"
	LinkNetwork = "network"
)

// Metrics holds the registered collectors.
type Metrics struct {
	samples       prometheus.Counter
	sampleErrors  prometheus.Counter
	publishes     prometheus.Counter
	publishErrors prometheus.Counter
	renders       *prometheus.CounterVec
	pageChanges   prometheus.Counter
	reading       *prometheus.GaugeVec
	connected     *prometheus.GaugeVec
}

// New registers the collectors on reg. If reg is nil, the default
// registerer is used. Collectors that are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error
	if m.samples, err = register(reg, counter("samples_total", "Successful power meter reads")); err != nil {
		return nil, err
	}
	if m.sampleErrors, err = register(reg, counter("sample_errors_total", "Failed or empty power meter reads")); err != nil {
		return nil, err
	}
	if m.publishes, err = register(reg, counter("publishes_total", "Readings delivered to the broker")); err != nil {
		return nil, err
	}
	if m.publishErrors, err = register(reg, counter("publish_errors_total", "Readings the broker did not accept")); err != nil {
		return nil, err
	}
	if m.pageChanges, err = register(reg, counter("page_changes_total", "Page changes from the touch pads")); err != nil {
		return nil, err
	}
	m.renders, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renders_total",
		Help:      "Display renders by redraw mode",
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}
	m.reading, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reading",
		Help:      "Latest power meter reading by quantity",
	}, []string{"quantity"}))
	if err != nil {
		return nil, err
	}
	m.connected, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected",
		Help:      "Link state (1 up, 0 down)",
	}, []string{"link"}))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// SampleOK counts a reading and updates the reading gauges.
func (m *Metrics) SampleOK(t pzem.Telemetry) {
	m.samples.Inc()
	m.reading.WithLabelValues("voltage").Set(t.Voltage)
	m.reading.WithLabelValues("current").Set(t.Current)
	m.reading.WithLabelValues("power").Set(t.Power)
	m.reading.WithLabelValues("energy").Set(t.Energy)
	m.reading.WithLabelValues("frequency").Set(t.Frequency)
	m.reading.WithLabelValues("power_factor").Set(t.PowerFactor)
}

// SampleFailed counts a failed read.
func (m *Metrics) SampleFailed() {
	m.sampleErrors.Inc()
}

// Published counts a publish result.
func (m *Metrics) Published(err error) {
	if err != nil {
		m.publishErrors.Inc()
		return
	}
	m.publishes.Inc()
}

// Rendered counts a render action.
func (m *Metrics) Rendered(full bool) {
	mode := "partial"
	if full {
		mode = "full"
	}
	m.renders.WithLabelValues(mode).Inc()
}

// PageChanged counts a page change.
func (m *Metrics) PageChanged() {
	m.pageChanges.Inc()
}

// SetConnected records the state of a link.
func (m *Metrics) SetConnected(link string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.connected.WithLabelValues(link).Set(v)
}

// Package status provides a thread-safe status tracker for the energy-monitor daemon.
// It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/network from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Name             string
	SampleIntervalMs int64
	RenderIntervalMs int64
	HeartbeatMs      int64
	PageCount        int
	Broker           string
	Topic            string
	SerialDevice     string
	HTTPAddr         string
}

// Counters are monotonically increasing loop counters.
type Counters struct {
	Samples       int
	SampleErrors  int
	Publishes     int
	PublishErrors int
	Renders       int
	FullRenders   int
	PageChanges   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Reading         pzem.Telemetry
	HasReading      bool
	SensorConnected bool
	MQTTConnected   bool
	PageIndex       int
	Counters        Counters
	StartTime       time.Time
	Now             time.Time
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordSample stores a successful reading.
func (t *Tracker) RecordSample(r pzem.Telemetry) {
	t.mu.Lock()
	t.snap.Reading = r
	t.snap.HasReading = true
	t.snap.Counters.Samples++
	t.mu.Unlock()
}

// RecordSampleError counts a failed or empty reading.
func (t *Tracker) RecordSampleError() {
	t.mu.Lock()
	t.snap.Counters.SampleErrors++
	t.mu.Unlock()
}

// RecordPublish counts a publish attempt. Called from the publisher goroutine.
func (t *Tracker) RecordPublish(err error) {
	t.mu.Lock()
	if err != nil {
		t.snap.Counters.PublishErrors++
	} else {
		t.snap.Counters.Publishes++
	}
	t.mu.Unlock()
}

// RecordRender counts a render action.
func (t *Tracker) RecordRender(full bool) {
	t.mu.Lock()
	t.snap.Counters.Renders++
	if full {
		t.snap.Counters.FullRenders++
	}
	t.mu.Unlock()
}

// SetPage records the current page index, counting changes.
func (t *Tracker) SetPage(index int) {
	t.mu.Lock()
	if index != t.snap.PageIndex {
		t.snap.Counters.PageChanges++
	}
	t.snap.PageIndex = index
	t.mu.Unlock()
}

// SetSensorConnected sets the power meter link status.
func (t *Tracker) SetSensorConnected(connected bool) {
	t.mu.Lock()
	t.snap.SensorConnected = connected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

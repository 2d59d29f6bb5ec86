// Package influx mirrors published readings into InfluxDB.
package influx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/sweeney/energy-monitor/internal/mqtt"
	"github.com/sweeney/energy-monitor/internal/pzem"
)

// Measurement is the point name for readings.
const Measurement = "power"

// DefaultTimeout bounds one write.
const DefaultTimeout = 5 * time.Second

// Config holds the InfluxDB v2 endpoint. An empty URL disables the sink.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// Enabled reports whether a sink should be created.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// pointWriter is the subset of api.WriteAPIBlocking used by Sink.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes readings as points tagged with the meter name.
type Sink struct {
	client  influxdb2.Client
	writer  pointWriter
	name    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewSink creates a sink for the given endpoint. It does not contact the server.
func NewSink(cfg Config, name string, log zerolog.Logger) *Sink {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &Sink{
		client:  client,
		writer:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		name:    name,
		timeout: cfg.Timeout,
		log:     log,
	}
}

// Check pings the server health endpoint.
func (s *Sink) Check(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("influx health status: %s", health.Status)
	}
	return nil
}

// Point converts a reading to an InfluxDB point.
func Point(name string, t pzem.Telemetry) *write.Point {
	return write.NewPointWithMeasurement(Measurement).
		AddTag("name", name).
		AddField("voltage", t.Voltage).
		AddField("current", t.Current).
		AddField("power", t.Power).
		AddField("energy", t.Energy).
		AddField("freq", t.Frequency).
		AddField("pf", t.PowerFactor).
		AddField("alarm", t.Alarm).
		SetTime(t.Timestamp)
}

// Write stores one reading.
func (s *Sink) Write(ctx context.Context, t pzem.Telemetry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.WritePoint(ctx, Point(s.name, t)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Tee is a Publisher that writes every reading to the sink before passing
// it on. Sink failures are logged and do not fail the publish.
type Tee struct {
	next mqtt.Publisher
	sink *Sink
}

// NewTee wraps next.
func NewTee(next mqtt.Publisher, sink *Sink) *Tee {
	return &Tee{next: next, sink: sink}
}

// Publish writes to InfluxDB, then to next.
func (t *Tee) Publish(r pzem.Telemetry) error {
	if err := t.sink.Write(context.Background(), r); err != nil {
		t.sink.log.Warn().Err(err).Msg("influx write failed")
	}
	return t.next.Publish(r)
}

// PublishSystem forwards to next.
func (t *Tee) PublishSystem(event mqtt.SystemEvent) error {
	return t.next.PublishSystem(event)
}

// IsConnected forwards to next when it reports status.
func (t *Tee) IsConnected() bool {
	if cs, ok := t.next.(mqtt.ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close closes next and the sink.
func (t *Tee) Close() error {
	t.sink.Close()
	return t.next.Close()
}

package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/energy-monitor/internal/display"
	"github.com/sweeney/energy-monitor/internal/metrics"
	"github.com/sweeney/energy-monitor/internal/mqtt"
	"github.com/sweeney/energy-monitor/internal/network"
	"github.com/sweeney/energy-monitor/internal/pages"
	"github.com/sweeney/energy-monitor/internal/pzem"
	"github.com/sweeney/energy-monitor/internal/status"
	"github.com/sweeney/energy-monitor/internal/touch"
)

// loop holds everything runLoop drives. touch, metrics and watcher may be nil.
type loop struct {
	touch     touch.Source
	sensor    pzem.Sensor
	publisher mqtt.Publisher
	renderer  *display.Renderer
	scheduler *pages.Scheduler
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	watcher   *network.Watcher
	history   *display.History

	name         string
	heartbeat    time.Duration
	networkCheck time.Duration
	log          zerolog.Logger

	lastNetCheck  time.Time
	lastHeartbeat time.Time
	sensorUp      bool
	touchFailing  bool
	checked       bool
}

// runLoop runs one control step per tick until a signal arrives or ctx is
// done. On exit it publishes a SHUTDOWN event with the final status.
func runLoop(ctx context.Context, l *loop, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	l.lastHeartbeat = now()

	for {
		select {
		case s := <-sig:
			l.log.Info().Str("signal", s.String()).Msg("shutting down")
			l.shutdown(now(), signalName(s))
			return nil

		case <-ctx.Done():
			l.log.Info().Msg("context cancelled, shutting down")
			l.shutdown(now(), "CANCELLED")
			return nil

		case <-tick:
			l.step(now())
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// step is one pass of the control flow: connectivity, touch, scheduler,
// then the sample, render and heartbeat actions.
func (l *loop) step(t time.Time) {
	l.checkConnectivity(t)
	l.pollTouch(t)

	action := l.scheduler.Tick(t, l.sensorUp)
	if action.WantSample {
		l.sample(t)
	}
	if action.WantRender {
		l.render(action)
	}

	if l.heartbeat > 0 && t.Sub(l.lastHeartbeat) >= l.heartbeat {
		l.lastHeartbeat = t
		l.publishStatus(t, "HEARTBEAT", "", false)
	}
}

func (l *loop) checkConnectivity(t time.Time) {
	changed := false

	up := l.sensor.Connected()
	if up != l.sensorUp || !l.checked {
		l.sensorUp = up
		l.tracker.SetSensorConnected(up)
		l.setLink(metrics.LinkSensor, up)
		l.log.Info().Bool("connected", up).Msg("sensor link")
		changed = true
	}

	if l.watcher != nil && (!l.checked || t.Sub(l.lastNetCheck) >= l.networkCheck || t.Before(l.lastNetCheck)) {
		l.lastNetCheck = t
		if state, diff := l.watcher.Check(); diff {
			if state.HasInfo {
				i := state.Info
				l.tracker.SetNetwork(&status.NetworkInfo{
					Type: i.Type, IP: i.IP, Status: i.Status,
					Gateway: i.Gateway, WifiStatus: i.WifiStatus, SSID: i.SSID,
				})
			} else {
				l.tracker.SetNetwork(nil)
			}
			l.tracker.SetMQTTConnected(state.MQTT)
			l.setLink(metrics.LinkNetwork, state.Up())
			l.setLink(metrics.LinkMQTT, state.MQTT)
			l.log.Info().Bool("network", state.Up()).Bool("mqtt", state.MQTT).Str("ip", state.Info.IP).Msg("connectivity changed")
			changed = true
		}
	}

	l.checked = true
	if changed {
		l.scheduler.MarkConnectivityChanged()
	}
}

func (l *loop) setLink(link string, up bool) {
	if l.metrics != nil {
		l.metrics.SetConnected(link, up)
	}
}

func (l *loop) pollTouch(t time.Time) {
	if l.touch == nil {
		return
	}
	readings, err := l.touch.Read()
	if err != nil {
		if !l.touchFailing {
			l.log.Error().Err(err).Msg("touch read error")
			l.touchFailing = true
		}
		return
	}
	if l.touchFailing {
		l.log.Info().Msg("touch read recovered")
		l.touchFailing = false
	}

	before := l.scheduler.PageIndex()
	for _, e := range l.scheduler.Poll(readings, t) {
		l.log.Debug().Int("channel", e.Channel).Msg("touch press")
	}
	if after := l.scheduler.PageIndex(); after != before {
		l.log.Info().Int("page", after).Msg("page changed")
		l.tracker.SetPage(after)
		if l.metrics != nil {
			l.metrics.PageChanged()
		}
	}
}

func (l *loop) sample(t time.Time) {
	r, err := l.sensor.Read()
	if err == nil && !r.Valid() {
		err = pzem.ErrNoReading
	}
	if err != nil {
		l.log.Warn().Err(err).Msg("sensor read failed")
		l.tracker.RecordSampleError()
		if l.metrics != nil {
			l.metrics.SampleFailed()
		}
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = t
	}

	l.tracker.RecordSample(r)
	if l.metrics != nil {
		l.metrics.SampleOK(r)
	}
	if l.history != nil {
		l.history.Add(r.Power)
	}
	l.scheduler.MarkTelemetryUpdated()

	if err := l.publisher.Publish(r); err != nil {
		l.log.Error().Err(err).Msg("publish error")
	}
}

func (l *loop) render(a pages.Action) {
	if err := l.renderer.Render(a.PageIndex, a.FullRedraw, l.view()); err != nil {
		l.log.Error().Err(err).Int("page", a.PageIndex).Msg("render error")
		return
	}
	l.tracker.RecordRender(a.FullRedraw)
	if l.metrics != nil {
		l.metrics.Rendered(a.FullRedraw)
	}
}

func (l *loop) view() display.View {
	snap := l.tracker.Snapshot()
	v := display.View{
		Name:            l.name,
		Reading:         snap.Reading,
		HasReading:      snap.HasReading,
		SensorConnected: snap.SensorConnected,
		MQTTConnected:   snap.MQTTConnected,
		History:         l.history,
	}
	if n := snap.Network; n != nil {
		info := network.Info{Type: n.Type, IP: n.IP, Status: n.Status, Gateway: n.Gateway, SSID: n.SSID}
		v.NetworkUp = info.Up()
		v.Network = display.NetworkInfo{Type: n.Type, IP: n.IP, Gateway: n.Gateway, Status: n.Status, SSID: n.SSID}
	}
	return v
}

func (l *loop) publishStatus(t time.Time, event, reason string, retained bool) {
	snap := l.tracker.Snapshot()
	l.log.Info().Str("event", event).Dur("uptime", snap.Uptime()).
		Int("samples", snap.Counters.Samples).Int("sample_errors", snap.Counters.SampleErrors).
		Msg("system event")
	err := l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		l.log.Error().Err(err).Str("event", event).Msg("system publish error")
	}
}

func (l *loop) shutdown(t time.Time, reason string) {
	if l.watcher != nil {
		l.tracker.SetMQTTConnected(l.watcher.Last().MQTT)
	}
	l.publishStatus(t, "SHUTDOWN", reason, true)
}

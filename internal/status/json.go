package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Name          string       `json:"name"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sensor        SensorStatus `json:"sensor"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	Page          PageJSON     `json:"page"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SensorStatus reports the power meter link.
type SensorStatus struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Device    string `json:"device"`
}

// ReadingJSON is the latest reading, using the telemetry field names.
type ReadingJSON struct {
	Timestamp   string  `json:"timestamp"`
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Power       float64 `json:"power"`
	Energy      float64 `json:"energy"`
	Frequency   float64 `json:"freq"`
	PowerFactor float64 `json:"pf"`
	Alarm       bool    `json:"alarm"`
}

// PageJSON reports the displayed page.
type PageJSON struct {
	Index int `json:"index"`
	Count int `json:"count"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
}

// CountsJSON is the JSON representation of loop counters.
type CountsJSON struct {
	Samples       int `json:"samples"`
	SampleErrors  int `json:"sample_errors"`
	Publishes     int `json:"publishes"`
	PublishErrors int `json:"publish_errors"`
	Renders       int `json:"renders"`
	FullRenders   int `json:"full_renders"`
	PageChanges   int `json:"page_changes"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleIntervalMs int64  `json:"sample_interval_ms"`
	RenderIntervalMs int64  `json:"render_interval_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	PageCount        int    `json:"page_count"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Name:          snap.Config.Name,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Sensor: SensorStatus{
			Connected: snap.SensorConnected,
			Device:    snap.Config.SerialDevice,
		},
		Page: PageJSON{Index: snap.PageIndex, Count: snap.Config.PageCount},
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Topic:     snap.Config.Topic,
		},
		Counts: CountsJSON(snap.Counters),
		Config: ConfigJSON{
			SampleIntervalMs: snap.Config.SampleIntervalMs,
			RenderIntervalMs: snap.Config.RenderIntervalMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			PageCount:        snap.Config.PageCount,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}

	if snap.HasReading {
		r := snap.Reading
		inner.Sensor.Address = fmt.Sprintf("0x%02X", r.Address)
		inner.Reading = &ReadingJSON{
			Timestamp:   r.Timestamp.UTC().Format(time.RFC3339),
			Voltage:     r.Voltage,
			Current:     r.Current,
			Power:       r.Power,
			Energy:      r.Energy,
			Frequency:   r.Frequency,
			PowerFactor: r.PowerFactor,
			Alarm:       r.Alarm,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

// Default topic layout of the ESP32 firmware: /esp32/Electricity/<name>.
const (
	DefaultTopicPrefix = "/esp32/Electricity/"
	DefaultName        = "house"
)

// Topics holds the resolved topic names.
type Topics struct {
	Telemetry string
	System    string
}

// NewTopics builds the telemetry and system topics from a prefix and a
// meter name ("house", "solar").
func NewTopics(prefix, name string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if name == "" {
		name = DefaultName
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Topics{
		Telemetry: prefix + name,
		System:    prefix + name + "/system",
	}
}

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends a telemetry reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(t pzem.Telemetry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the telemetry message. Field names match the ESP32
// firmware so existing dashboards keep working.
type Payload struct {
	Timestamp   string  `json:"timestamp"`
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	Power       float64 `json:"power"`
	Energy      float64 `json:"energy"`
	Frequency   float64 `json:"freq"`
	PowerFactor float64 `json:"pf"`
	Alarm       bool    `json:"alarm,omitempty"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(t pzem.Telemetry) ([]byte, error) {
	return json.Marshal(Payload{
		Timestamp:   t.Timestamp.UTC().Format(time.RFC3339),
		Voltage:     t.Voltage,
		Current:     t.Current,
		Power:       t.Power,
		Energy:      t.Energy,
		Frequency:   t.Frequency,
		PowerFactor: t.PowerFactor,
		Alarm:       t.Alarm,
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// Package touch turns noisy raw capacitive touch readings into press-edge events.
// This package has NO hardware dependencies in its core; time and readings
// are always injected by the caller.
package touch

import "time"

// State is the debounce state of a single touch channel.
type State string

const (
	StateIdle         State = "IDLE"
	StateFirstContact State = "FIRST_CONTACT"
	StateHeld         State = "HELD"
	// StateReleased is accepted as a prior state (for example when restoring
	// channels) and is handled like Idle. Poll itself always releases to Idle.
	StateReleased State = "RELEASED"
)

// DefaultThreshold matches the calibration of the ESP32 touch pads:
// readings below 20 mean a finger is on the pad.
const DefaultThreshold = 20

// ChannelConfig describes one physical touch line.
type ChannelConfig struct {
	ID        int `koanf:"id"`
	Threshold int `koanf:"threshold"`
	// Line is the GPIO line offset used by GPIOSource. Ignored by other sources.
	Line int `koanf:"line"`
}

// Channel is the live state of one touch line.
type Channel struct {
	ID        int
	Threshold int
	State     State
}

// Reading is a raw proximity value for one channel. Lower means closer.
type Reading struct {
	Channel int
	Raw     int
}

// Event is a press-edge: emitted once per confirmed touch.
type Event struct {
	Channel   int
	Timestamp time.Time
}

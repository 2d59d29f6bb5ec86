// Package pzem reads power telemetry from a PZEM-004T v3 energy meter.
package pzem

import (
	"errors"
	"time"
)

// Telemetry is one reading of the meter.
type Telemetry struct {
	Timestamp   time.Time
	Address     uint8
	Voltage     float64 // V
	Current     float64 // A
	Power       float64 // W
	Energy      float64 // Wh
	Frequency   float64 // Hz
	PowerFactor float64
	Alarm       bool
}

// Valid reports whether the reading carries data. The meter answers with
// zeros when the measured line is unpowered.
func (t Telemetry) Valid() bool {
	return t.Voltage > 0
}

// Sensor is a power meter.
type Sensor interface {
	// Read takes one reading.
	Read() (Telemetry, error)

	// ResetEnergy clears the accumulated energy counter.
	ResetEnergy() error

	// Connected reports whether the meter answered recently.
	Connected() bool

	// Close releases the serial port.
	Close() error
}

// ErrNotConnected is returned when the meter has not been found on the bus.
var ErrNotConnected = errors.New("pzem: sensor not connected")

// ErrNoReading marks a reply with zero voltage: the meter answers but sees
// no mains, so the reading is not published.
var ErrNoReading = errors.New("pzem: no reading (zero voltage)")

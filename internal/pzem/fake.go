package pzem

import "sync"

// FakeSensor is a test double returning scripted readings. Safe for
// concurrent use; read the exported fields only once the sensor is idle.
type FakeSensor struct {
	mu sync.Mutex

	// Readings are returned in order; the last one repeats.
	Readings []Telemetry
	index    int

	// ReadError, if set, is returned by Read.
	ReadError error

	// ResetError, if set, is returned by ResetEnergy.
	ResetError error

	// IsConnected controls Connected.
	IsConnected bool

	Reads  int
	Resets int
	Closed bool
}

// NewFakeSensor returns a connected fake with the given readings.
func NewFakeSensor(readings ...Telemetry) *FakeSensor {
	return &FakeSensor{Readings: readings, IsConnected: true}
}

// Read returns the next scripted reading.
func (f *FakeSensor) Read() (Telemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return Telemetry{}, f.ReadError
	}
	if len(f.Readings) == 0 {
		return Telemetry{}, ErrNotConnected
	}
	t := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return t, nil
}

// ResetEnergy records the reset.
func (f *FakeSensor) ResetEnergy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResetError != nil {
		return f.ResetError
	}
	f.Resets++
	return nil
}

// Connected returns IsConnected.
func (f *FakeSensor) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.IsConnected
}

// SetConnected changes the link state.
func (f *FakeSensor) SetConnected(c bool) {
	f.mu.Lock()
	f.IsConnected = c
	f.mu.Unlock()
}

// Close marks the sensor closed.
func (f *FakeSensor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

package touch

import "errors"

// FakeSource is a test double that returns scripted readings.
type FakeSource struct {
	// Samples contains scripted readings; each Read consumes the next one.
	Samples [][]Reading

	index int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read.
	ReadError error
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples [][]Reading) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeSource) Read() ([]Reading, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	out := make([]Reading, len(sample))
	copy(out, sample)
	return out, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeSource) Reset() {
	f.index = 0
	f.Closed = false
}

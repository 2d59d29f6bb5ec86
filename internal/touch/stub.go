//go:build !linux

package touch

import "errors"

// GPIOSource is not available on non-Linux platforms.
type GPIOSource struct{}

// NewGPIOSource returns an error on non-Linux platforms.
func NewGPIOSource(chipName string, channels []ChannelConfig) (*GPIOSource, error) {
	return nil, errors.New("touch: gpio not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (s *GPIOSource) Read() ([]Reading, error) {
	return nil, errors.New("touch: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (s *GPIOSource) Close() error {
	return nil
}

//go:build linux

package touch

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource reads digital touch pads from the Linux GPIO character device.
// Each pad is reported as RawTouched when its line is active, RawIdle otherwise.
type GPIOSource struct {
	chip  *gpiocdev.Chip
	ids   []int
	lines []*gpiocdev.Line
}

// NewGPIOSource requests one input line per channel on the given chip.
func NewGPIOSource(chipName string, channels []ChannelConfig) (*GPIOSource, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	s := &GPIOSource{chip: chip}
	for _, c := range channels {
		line, err := chip.RequestLine(c.Line, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("request touch line %d (channel %d): %w", c.Line, c.ID, err)
		}
		s.ids = append(s.ids, c.ID)
		s.lines = append(s.lines, line)
	}
	return s, nil
}

// Read returns one reading per channel.
func (s *GPIOSource) Read() ([]Reading, error) {
	out := make([]Reading, 0, len(s.lines))
	for i, line := range s.lines {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read touch channel %d: %w", s.ids[i], err)
		}
		raw := RawIdle
		if v == 1 {
			raw = RawTouched
		}
		out = append(out, Reading{Channel: s.ids[i], Raw: raw})
	}
	return out, nil
}

// Close releases the lines and the chip.
func (s *GPIOSource) Close() error {
	var errs []error
	for i, line := range s.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close touch channel %d: %w", s.ids[i], err))
		}
	}
	s.lines = nil
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		s.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

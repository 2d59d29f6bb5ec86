package display

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultHistorySize is the number of power samples kept for the chart.
const DefaultHistorySize = DefaultWidth

// History is a bounded series of recent power readings, oldest first.
type History struct {
	mu   sync.Mutex
	vals []float64
	size int
}

// NewHistory creates a History holding at most size values.
func NewHistory(size int) *History {
	if size < 2 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Add appends v, dropping the oldest value when full.
func (h *History) Add(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.vals) == h.size {
		copy(h.vals, h.vals[1:])
		h.vals = h.vals[:h.size-1]
	}
	h.vals = append(h.vals, v)
}

// Values returns a copy of the series.
func (h *History) Values() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.vals))
	copy(out, h.vals)
	return out
}

// Len returns the number of stored values.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.vals)
}

// Stats summarises the series. ok is false when it is empty.
type Stats struct {
	Min, Max, Mean float64
}

// Summary returns min, max and mean of the series.
func (h *History) Summary() (Stats, bool) {
	vals := h.Values()
	if len(vals) == 0 {
		return Stats{}, false
	}
	return Stats{
		Min:  floats.Min(vals),
		Max:  floats.Max(vals),
		Mean: stat.Mean(vals, nil),
	}, true
}

package display

import (
	"image"
	"sync"
)

// Panel is a physical or virtual screen that shows finished frames.
type Panel interface {
	Show(img image.Image) error
	Close() error
}

// MemoryPanel keeps the last frame it was shown. Used when no hardware is
// attached and in tests.
type MemoryPanel struct {
	mu     sync.Mutex
	last   image.Image
	shows  int
	closed bool

	// ShowError, if set, is returned by Show.
	ShowError error
}

// NewMemoryPanel creates an empty MemoryPanel.
func NewMemoryPanel() *MemoryPanel {
	return &MemoryPanel{}
}

// Show records img.
func (m *MemoryPanel) Show(img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShowError != nil {
		return m.ShowError
	}
	m.last = img
	m.shows++
	return nil
}

// Last returns the most recent frame, or nil.
func (m *MemoryPanel) Last() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Shows returns how many frames were shown.
func (m *MemoryPanel) Shows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shows
}

// Close marks the panel closed.
func (m *MemoryPanel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemoryPanel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

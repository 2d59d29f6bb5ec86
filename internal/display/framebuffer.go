// Package display renders the status pages into a framebuffer and pushes
// finished frames to a panel.
package display

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sync"

	"tinygo.org/x/drivers"
)

// Default panel geometry (SSD1306 128x64).
const (
	DefaultWidth  = 128
	DefaultHeight = 64
)

// Palette.
var (
	Black = color.RGBA{0, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}
	Green = color.RGBA{0, 200, 0, 255}
	Red   = color.RGBA{220, 0, 0, 255}
)

var _ drivers.Displayer = (*Framebuffer)(nil)

// Framebuffer is an in-memory RGBA raster that tinyfont can draw into.
// Display hands the finished frame to the panel.
type Framebuffer struct {
	mu    sync.RWMutex
	img   *image.RGBA
	panel Panel
}

// NewFramebuffer returns a black framebuffer of the given size. panel may be nil.
func NewFramebuffer(width, height int, panel Panel) *Framebuffer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	fb := &Framebuffer{
		img:   image.NewRGBA(image.Rect(0, 0, width, height)),
		panel: panel,
	}
	fb.Fill(fb.img.Rect, Black)
	return fb
}

// Size implements drivers.Displayer.
func (f *Framebuffer) Size() (x, y int16) {
	b := f.img.Rect
	return int16(b.Dx()), int16(b.Dy())
}

// SetPixel implements drivers.Displayer. Out of range pixels are ignored.
func (f *Framebuffer) SetPixel(x, y int16, c color.RGBA) {
	f.mu.Lock()
	f.img.SetRGBA(int(x), int(y), c)
	f.mu.Unlock()
}

// Display implements drivers.Displayer by pushing the frame to the panel.
func (f *Framebuffer) Display() error {
	if f.panel == nil {
		return nil
	}
	return f.panel.Show(f.Snapshot())
}

// Fill paints r with c.
func (f *Framebuffer) Fill(r image.Rectangle, c color.RGBA) {
	f.mu.Lock()
	draw.Draw(f.img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
	f.mu.Unlock()
}

// At returns the colour at (x, y).
func (f *Framebuffer) At(x, y int) color.RGBA {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.img.RGBAAt(x, y)
}

// Bounds returns the framebuffer rectangle.
func (f *Framebuffer) Bounds() image.Rectangle {
	return f.img.Rect
}

// Snapshot returns a copy of the current frame.
func (f *Framebuffer) Snapshot() *image.RGBA {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := image.NewRGBA(f.img.Rect)
	copy(out.Pix, f.img.Pix)
	return out
}

// WritePNG encodes the current frame as PNG.
func (f *Framebuffer) WritePNG(w io.Writer) error {
	return png.Encode(w, f.Snapshot())
}

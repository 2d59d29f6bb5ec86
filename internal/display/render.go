package display

import (
	"fmt"
	"image"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

// Page indices.
const (
	PageReadings = iota
	PageChart
	PageNetwork
	PageCount
)

const (
	lineHeight = 10
	baseline   = 8
	glyphSize  = 8
	chartTop   = 12
	chartFoot  = 54
)

// NetworkInfo is the link information shown on the network page.
type NetworkInfo struct {
	Type    string
	IP      string
	Gateway string
	Status  string
	SSID    string
}

// View is everything a page may show.
type View struct {
	Name            string
	Reading         pzem.Telemetry
	HasReading      bool
	SensorConnected bool
	MQTTConnected   bool
	NetworkUp       bool
	Network         NetworkInfo
	History         *History
}

// cell is a text slot that a partial redraw clears and repaints.
type cell struct {
	x, y, w int
}

func (c cell) rect() image.Rectangle {
	return image.Rect(c.x, c.y, c.x+c.w, c.y+lineHeight)
}

// Renderer draws pages into a Framebuffer.
type Renderer struct {
	fb   *Framebuffer
	font tinyfont.Fonter
	fg   color.RGBA
	bg   color.RGBA
}

// NewRenderer creates a renderer drawing white on black.
func NewRenderer(fb *Framebuffer) *Renderer {
	return &Renderer{
		fb:   fb,
		font: &proggy.TinySZ8pt7b,
		fg:   White,
		bg:   Black,
	}
}

// Framebuffer returns the target framebuffer.
func (r *Renderer) Framebuffer() *Framebuffer {
	return r.fb
}

// Render draws page. A full redraw clears the whole screen and paints the
// static decoration; otherwise only the value cells are repainted.
func (r *Renderer) Render(page int, full bool, v View) error {
	if full {
		r.fb.Fill(r.fb.Bounds(), r.bg)
	}
	switch page {
	case PageReadings:
		r.readings(full, v)
	case PageChart:
		r.chart(v)
	case PageNetwork:
		r.network(full, v)
	default:
		return fmt.Errorf("unknown page %d", page)
	}
	if err := r.fb.Display(); err != nil {
		return fmt.Errorf("display page %d: %w", page, err)
	}
	return nil
}

func (r *Renderer) text(c cell, s string, col color.RGBA) {
	r.fb.Fill(c.rect(), r.bg)
	tinyfont.WriteLine(r.fb, r.font, int16(c.x), int16(c.y+baseline), s, col)
}

func (r *Renderer) hline(y int) {
	r.fb.Fill(image.Rect(0, y, r.fb.Bounds().Dx(), y+1), r.fg)
}

// Status glyph positions on the readings page.
var (
	glyphNetwork = image.Pt(10, 42)
	glyphMQTT    = image.Pt(52, 42)
	glyphSensor  = image.Pt(94, 42)
)

func glyphRect(p image.Point) image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+glyphSize, p.Y+glyphSize)
}

func statusColor(ok bool) color.RGBA {
	if ok {
		return Green
	}
	return Red
}

func (r *Renderer) readings(full bool, v View) {
	if full {
		r.hline(38)
		tinyfont.WriteLine(r.fb, r.font, 0, int16(glyphNetwork.Y+baseline), "N", r.fg)
		tinyfont.WriteLine(r.fb, r.font, 42, int16(glyphMQTT.Y+baseline), "M", r.fg)
		tinyfont.WriteLine(r.fb, r.font, 84, int16(glyphSensor.Y+baseline), "S", r.fg)
	}

	t := v.Reading
	if v.HasReading {
		r.text(cell{0, 0, 64}, fmt.Sprintf("%.1fV", t.Voltage), r.fg)
		r.text(cell{64, 0, 64}, fmt.Sprintf("%.3fA", t.Current), r.fg)
		r.text(cell{0, 10, 64}, fmt.Sprintf("%.1fW", t.Power), r.fg)
		r.text(cell{64, 10, 64}, fmt.Sprintf("PF %.2f", t.PowerFactor), r.fg)
		r.text(cell{0, 20, 64}, fmt.Sprintf("%.0fWh", t.Energy), r.fg)
		r.text(cell{64, 20, 64}, fmt.Sprintf("%.1fHz", t.Frequency), r.fg)
	} else {
		for _, c := range []cell{{0, 0, 64}, {64, 0, 64}, {0, 10, 64}, {64, 10, 64}, {0, 20, 64}, {64, 20, 64}} {
			r.text(c, "--", r.fg)
		}
	}
	r.text(cell{0, 28, 40}, fmt.Sprintf("@%02X", t.Address), r.fg)
	r.text(cell{40, 28, 88}, orDash(v.Network.IP), r.fg)

	r.fb.Fill(glyphRect(glyphNetwork), statusColor(v.NetworkUp))
	r.fb.Fill(glyphRect(glyphMQTT), statusColor(v.MQTTConnected))
	r.fb.Fill(glyphRect(glyphSensor), statusColor(v.SensorConnected))
}

// chart always repaints everything: the sparkline has no stable cells.
func (r *Renderer) chart(v View) {
	b := r.fb.Bounds()
	r.fb.Fill(b, r.bg)

	title := "P --"
	if v.HasReading {
		title = fmt.Sprintf("P %.1fW", v.Reading.Power)
	}
	tinyfont.WriteLine(r.fb, r.font, 0, baseline, title, r.fg)

	if v.History == nil {
		return
	}
	stats, ok := v.History.Summary()
	if !ok {
		return
	}
	area := image.Rect(0, chartTop, b.Dx(), chartFoot)
	r.sparkline(area, v.History.Values(), stats)
	tinyfont.WriteLine(r.fb, r.font, 0, int16(chartFoot+baseline),
		fmt.Sprintf("avg %.0f max %.0f", stats.Mean, stats.Max), r.fg)
}

// sparkline plots vals left to right across area, scaled to [min, max].
func (r *Renderer) sparkline(area image.Rectangle, vals []float64, s Stats) {
	n := len(vals)
	h := area.Dy() - 1
	w := area.Dx() - 1
	point := func(i int) image.Point {
		x := area.Min.X
		if n > 1 {
			x += i * w / (n - 1)
		}
		y := area.Min.Y + h/2
		if span := s.Max - s.Min; span > 0 {
			y = area.Max.Y - 1 - int((vals[i]-s.Min)/span*float64(h))
		}
		return image.Pt(x, y)
	}
	prev := point(0)
	r.fb.SetPixel(int16(prev.X), int16(prev.Y), r.fg)
	for i := 1; i < n; i++ {
		p := point(i)
		r.line(prev, p)
		prev = p
	}
}

// line draws a Bresenham line.
func (r *Renderer) line(a, b image.Point) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		r.fb.SetPixel(int16(a.X), int16(a.Y), r.fg)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (r *Renderer) network(full bool, v View) {
	w := r.fb.Bounds().Dx()
	if full {
		tinyfont.WriteLine(r.fb, r.font, 0, baseline, "NETWORK", r.fg)
		r.hline(11)
	}
	n := v.Network
	r.text(cell{0, 14, w}, "SSID "+orDash(n.SSID), r.fg)
	r.text(cell{0, 24, w}, "IP "+orDash(n.IP), r.fg)
	r.text(cell{0, 34, w}, "GW "+orDash(n.Gateway), r.fg)
	r.text(cell{0, 44, w}, "LINK "+orDash(n.Status), statusColor(v.NetworkUp))
	r.text(cell{0, 54, w}, v.Name, r.fg)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

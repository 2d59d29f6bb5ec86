package display

import (
	"fmt"
	"image"
	"image/color"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// SSD1306Panel drives a monochrome SSD1306 over I2C.
type SSD1306Panel struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// OpenSSD1306 initialises the host drivers and opens the panel on the named
// I2C bus ("" picks the first one).
func OpenSSD1306(bus string, width, height int) (*SSD1306Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	opts := ssd1306.DefaultOpts
	if width > 0 {
		opts.W = width
	}
	if height > 0 {
		opts.H = height
	}
	dev, err := ssd1306.NewI2C(b, &opts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("open ssd1306: %w", err)
	}
	return &SSD1306Panel{bus: b, dev: dev}, nil
}

// Show converts img to 1 bit and draws it.
func (p *SSD1306Panel) Show(img image.Image) error {
	mono := toMono(img)
	if err := p.dev.Draw(mono.Bounds(), mono, image.Point{}); err != nil {
		return fmt.Errorf("draw ssd1306: %w", err)
	}
	return nil
}

// Close blanks the panel and releases the bus.
func (p *SSD1306Panel) Close() error {
	if err := p.dev.Halt(); err != nil {
		p.bus.Close()
		return fmt.Errorf("halt ssd1306: %w", err)
	}
	return p.bus.Close()
}

// toMono turns every non-black pixel on, so red and green glyphs both show.
func toMono(img image.Image) *image1bit.VerticalLSB {
	b := img.Bounds()
	out := image1bit.NewVerticalLSB(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if lit(img.At(x, y)) {
				out.SetBit(x, y, image1bit.On)
			}
		}
	}
	return out
}

func lit(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r|g|b != 0
}

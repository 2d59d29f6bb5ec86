package touch

// Source reads raw proximity values for the configured channels.
type Source interface {
	// Read returns one reading per channel.
	Read() ([]Reading, error)

	// Close releases the underlying hardware.
	Close() error
}

// Raw values reported by digital touch modules (TTP223 style) on GPIO.
// A driven line reads as RawTouched, an idle one as RawIdle.
const (
	RawTouched = 0
	RawIdle    = 4095
)

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

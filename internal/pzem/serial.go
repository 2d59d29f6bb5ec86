package pzem

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial line defaults of the PZEM-004T v3.
const (
	DefaultBaudRate     = 9600
	DefaultReadTimeout  = 300 * time.Millisecond
	DefaultProbeBackoff = 5 * time.Second
)

// port is the part of serial.Port the sensor needs.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialConfig describes how to reach the meter.
type SerialConfig struct {
	Device      string
	BaudRate    int
	Address     uint8
	ReadTimeout time.Duration
	// ProbeBackoff is the minimum time between probes while disconnected.
	ProbeBackoff time.Duration
}

func (c *SerialConfig) setDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Address == 0 {
		c.Address = GeneralAddress
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ProbeBackoff == 0 {
		c.ProbeBackoff = DefaultProbeBackoff
	}
}

// SerialSensor talks Modbus-RTU to a meter on a serial port. It is safe for
// concurrent use; the web reset handler and the sampling loop share it.
type SerialSensor struct {
	cfg  SerialConfig
	now  func() time.Time
	mu   sync.Mutex
	port port

	connected bool
	address   uint8
	lastProbe time.Time
}

// OpenSerial opens the serial device at 8N1.
func OpenSerial(cfg SerialConfig) (*SerialSensor, error) {
	cfg.setDefaults()
	p, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return newSerialSensor(cfg, p, time.Now)
}

func newSerialSensor(cfg SerialConfig, p port, now func() time.Time) (*SerialSensor, error) {
	cfg.setDefaults()
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialSensor{cfg: cfg, port: p, now: now}, nil
}

// Read takes one reading of all input registers.
func (s *SerialSensor) Read() (Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.transact(readRegistersRequest(s.cfg.Address, fnReadInput, 0, inputCount), inputReplyLn)
	if err != nil {
		s.connected = false
		return Telemetry{}, err
	}
	payload, err := checkReply(reply, fnReadInput)
	if err != nil {
		return Telemetry{}, err
	}
	t, err := decodeInput(payload)
	if err != nil {
		return Telemetry{}, err
	}
	s.connected = true
	t.Timestamp = s.now()
	t.Address = s.address
	return t, nil
}

// ResetEnergy clears the energy counter.
func (s *SerialSensor) ResetEnergy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.transact(resetEnergyRequest(s.cfg.Address), resetReplyLn)
	if err != nil {
		return err
	}
	_, err = checkReply(reply, fnResetEnergy)
	return err
}

// Connected reports the last known link state. While disconnected it probes
// the meter's address register, at most once per ProbeBackoff.
func (s *SerialSensor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return true
	}
	now := s.now()
	if !s.lastProbe.IsZero() && now.Sub(s.lastProbe) < s.cfg.ProbeBackoff {
		return false
	}
	s.lastProbe = now

	reply, err := s.transact(readRegistersRequest(s.cfg.Address, fnReadHolding, regAddress, 1), addrReplyLn)
	if err != nil {
		return false
	}
	payload, err := checkReply(reply, fnReadHolding)
	if err != nil || len(payload) != 3 {
		return false
	}
	s.address = payload[2]
	s.connected = true
	return true
}

// Close closes the serial port.
func (s *SerialSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// transact writes req and reads the reply. want is the length of a normal
// reply; an exception reply has its own fixed length.
func (s *SerialSensor) transact(req []byte, want int) ([]byte, error) {
	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input: %w", err)
	}
	if _, err := s.port.Write(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	buf := make([]byte, max(want, errorReplyLn))
	n := 0
	for n < want {
		m, err := s.port.Read(buf[n:want])
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		if m == 0 {
			return nil, fmt.Errorf("pzem: timeout after %d of %d bytes", n, want)
		}
		n += m
		if n >= 2 && buf[1]&fnErrorFlag != 0 {
			want = errorReplyLn
		}
	}
	return buf[:want], nil
}

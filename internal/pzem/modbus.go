package pzem

import (
	"encoding/binary"
	"fmt"
)

// Modbus-RTU details of the PZEM-004T v3.
const (
	// GeneralAddress is answered by any single meter on the bus.
	GeneralAddress = 0xF8

	fnReadHolding = 0x03
	fnReadInput   = 0x04
	fnResetEnergy = 0x42
	fnErrorFlag   = 0x80

	regAddress   = 0x0002
	inputCount   = 10
	inputReplyLn = 3 + inputCount*2 + 2
	addrReplyLn  = 3 + 2 + 2
	resetReplyLn = 4
	errorReplyLn = 5
)

// crc16 is the Modbus CRC (poly 0xA001, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC appends the CRC low byte first.
func appendCRC(frame []byte) []byte {
	return binary.LittleEndian.AppendUint16(frame, crc16(frame))
}

func checkCRC(frame []byte) bool {
	if len(frame) < 4 {
		return false
	}
	n := len(frame) - 2
	return binary.LittleEndian.Uint16(frame[n:]) == crc16(frame[:n])
}

func readRegistersRequest(addr, fn byte, reg, count uint16) []byte {
	frame := []byte{addr, fn, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(frame[2:], reg)
	binary.BigEndian.PutUint16(frame[4:], count)
	return appendCRC(frame)
}

func resetEnergyRequest(addr byte) []byte {
	return appendCRC([]byte{addr, fnResetEnergy})
}

// ExceptionError is a Modbus exception reply from the meter.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("pzem: function 0x%02X exception 0x%02X", e.Function, e.Code)
}

// checkReply validates framing of a reply to fn and returns its payload
// (everything between function code and CRC).
func checkReply(reply []byte, fn byte) ([]byte, error) {
	if len(reply) >= errorReplyLn && reply[1] == fn|fnErrorFlag {
		if !checkCRC(reply[:errorReplyLn]) {
			return nil, fmt.Errorf("pzem: bad crc on exception reply")
		}
		return nil, &ExceptionError{Function: fn, Code: reply[2]}
	}
	if len(reply) < 4 {
		return nil, fmt.Errorf("pzem: short reply (%d bytes)", len(reply))
	}
	if !checkCRC(reply) {
		return nil, fmt.Errorf("pzem: bad crc")
	}
	if reply[1] != fn {
		return nil, fmt.Errorf("pzem: unexpected function 0x%02X, want 0x%02X", reply[1], fn)
	}
	return reply[2 : len(reply)-2], nil
}

// decodeInput turns the 10 input registers into a Telemetry (without
// timestamp). payload starts with the byte count.
func decodeInput(payload []byte) (Telemetry, error) {
	if len(payload) != 1+inputCount*2 || int(payload[0]) != inputCount*2 {
		return Telemetry{}, fmt.Errorf("pzem: unexpected input payload length %d", len(payload))
	}
	regs := make([]uint16, inputCount)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(payload[1+i*2:])
	}
	u32 := func(lo, hi uint16) uint32 { return uint32(lo) | uint32(hi)<<16 }

	return Telemetry{
		Voltage:     float64(regs[0]) / 10,
		Current:     float64(u32(regs[1], regs[2])) / 1000,
		Power:       float64(u32(regs[3], regs[4])) / 10,
		Energy:      float64(u32(regs[5], regs[6])),
		Frequency:   float64(regs[7]) / 10,
		PowerFactor: float64(regs[8]) / 100,
		Alarm:       regs[9] == 0xFFFF,
	}, nil
}

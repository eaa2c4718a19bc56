package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command is a single OpenEEPROM request: one opcode byte followed by an
// opcode-specific payload.
type Command struct {
	Opcode  Opcode
	Payload []byte
}

// NewCommand builds a command. The payload is copied so later changes to
// the caller's slice do not alter the command.
func NewCommand(op Opcode, payload []byte) Command {
	c := Command{Opcode: op}
	if len(payload) > 0 {
		c.Payload = append([]byte(nil), payload...)
	}
	return c
}

// Encode serializes the command to the bytes sent on the wire.
func (c Command) Encode() []byte {
	// Packet format:
	// 0: opcode
	// 1+: payload (layout depends on opcode)
	packet := make([]byte, 1+len(c.Payload))
	packet[0] = byte(c.Opcode)
	copy(packet[1:], c.Payload)
	return packet
}

// DecodeCommand splits raw request bytes back into opcode and payload.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrProtocol)
	}
	op := Opcode(data[0])
	if !op.Valid() {
		return Command{}, fmt.Errorf("%w: unknown opcode 0x%02X", ErrProtocol, data[0])
	}
	return NewCommand(op, data[1:]), nil
}

// Uint8Data creates a single-byte payload.
func Uint8Data(v uint8) []byte {
	return []byte{v}
}

// Uint32Data creates a little-endian 4-byte payload.
func Uint32Data(v uint32) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v)
	return data
}

// ParallelReadData creates the payload for PARALLEL_READ.
func ParallelReadData(address, count uint32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], address)
	binary.LittleEndian.PutUint32(data[4:8], count)
	return data
}

// ParallelWriteData creates the payload for PARALLEL_WRITE.
func ParallelWriteData(address uint32, bytes []byte) []byte {
	// Header: address (4) + count (4)
	data := make([]byte, 8+len(bytes))
	binary.LittleEndian.PutUint32(data[0:4], address)
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(bytes)))
	copy(data[8:], bytes)
	return data
}

// SPITransmitData creates the payload for SPI_TRANSMIT.
func SPITransmitData(bytes []byte) []byte {
	data := make([]byte, 4+len(bytes))
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(bytes)))
	copy(data[4:], bytes)
	return data
}

// DecodeUint16 parses a little-endian u16 result.
func DecodeUint16(data []byte) (uint16, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("%w: expected 2 result bytes, got %d", ErrProtocol, len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}

// DecodeUint32 parses a little-endian u32 result.
func DecodeUint32(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("%w: expected 4 result bytes, got %d", ErrProtocol, len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

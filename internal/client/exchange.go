package client

import (
	"encoding/binary"
	"fmt"

	"github.com/openeeprom/openeeprom/internal/debug"
	"github.com/openeeprom/openeeprom/internal/protocol"
)

// field describes how a fixed-width integer travels on the wire.
type field[T uint8 | uint32] struct {
	size   int
	encode func(T) []byte
	decode func([]byte) T
}

var (
	u8 = field[uint8]{
		size:   1,
		encode: protocol.Uint8Data,
		decode: func(b []byte) uint8 { return b[0] },
	}
	u32 = field[uint32]{
		size:   4,
		encode: protocol.Uint32Data,
		decode: binary.LittleEndian.Uint32,
	}
)

// fixedResult returns the result length of an opcode whose response size
// does not depend on the request.
func fixedResult(op protocol.Opcode) (int, error) {
	n, variable := op.ResultSize()
	if variable {
		return 0, fmt.Errorf("%s: result length depends on the request: %w", op, protocol.ErrInvalidArgument)
	}
	return n, nil
}

// fixedExchange performs a round trip for a fixed-size opcode and checks
// that the result fits f.
func fixedExchange[T uint8 | uint32](c *Client, cmd protocol.Command, f field[T]) (T, error) {
	n, err := fixedResult(cmd.Opcode)
	if err != nil {
		return 0, err
	}
	if n != f.size {
		return 0, fmt.Errorf("%s: %d-byte result cannot hold a %d-byte value: %w",
			cmd.Opcode, n, f.size, protocol.ErrProtocol)
	}
	result, err := c.exchange(cmd, n)
	if err != nil {
		return 0, err
	}
	return f.decode(result), nil
}

// query sends a payload-less command and decodes its fixed-width result.
func query[T uint8 | uint32](c *Client, op protocol.Opcode, f field[T]) (T, error) {
	return fixedExchange(c, protocol.NewCommand(op, nil), f)
}

// setAndVerify sends a configuration value and compares the value the
// device echoes back. A different echo means the device clamped or rejected
// the request; the applied value is returned with the error.
func setAndVerify[T uint8 | uint32](c *Client, op protocol.Opcode, f field[T], value T) (T, error) {
	actual, err := fixedExchange(c, protocol.NewCommand(op, f.encode(value)), f)
	if err != nil {
		return 0, err
	}

	if actual != value {
		return actual, &protocol.MismatchError{
			Opcode:    op,
			Requested: uint32(value),
			Actual:    uint32(actual),
		}
	}
	return actual, nil
}

// exchange performs one command/response round trip.
func (c *Client) exchange(cmd protocol.Command, resultLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchangeLocked(cmd, resultLen)
}

func (c *Client) exchangeLocked(cmd protocol.Command, resultLen int) ([]byte, error) {
	frame := cmd.Encode()
	debug.Debugf("-> %s [%s]", cmd.Opcode, debug.Bytes(frame))

	if err := c.io.Send(frame); err != nil {
		return nil, fmt.Errorf("%s: send: %w", cmd.Opcode, err)
	}

	if err := c.checkStatus(cmd.Opcode); err != nil {
		return nil, err
	}

	if resultLen == 0 {
		return nil, nil
	}

	result, err := c.io.Receive(resultLen)
	if err != nil {
		return nil, fmt.Errorf("%s: read result: %w", cmd.Opcode, err)
	}
	if len(result) != resultLen {
		return nil, fmt.Errorf("%s: expected %d result bytes, got %d: %w",
			cmd.Opcode, resultLen, len(result), protocol.ErrProtocol)
	}
	debug.Debugf("<- %s [%s]", cmd.Opcode, debug.Bytes(result))

	return result, nil
}

// checkStatus reads the status byte that precedes every response.
func (c *Client) checkStatus(op protocol.Opcode) error {
	status, err := c.io.Receive(1)
	if err != nil {
		return fmt.Errorf("%s: read status: %w", op, err)
	}
	if len(status) != 1 {
		return fmt.Errorf("%s: expected 1 status byte, got %d: %w", op, len(status), protocol.ErrProtocol)
	}

	debug.Debugf("<- %s status %s", op, protocol.StatusName(status[0]))

	switch status[0] {
	case protocol.StatusACK:
		return nil
	case protocol.StatusNAK:
		return &protocol.CommandError{Opcode: op}
	default:
		return &protocol.StatusError{Opcode: op, Status: status[0]}
	}
}

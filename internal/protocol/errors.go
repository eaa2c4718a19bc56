package protocol

import (
	"errors"
	"fmt"
)

// Error categories. Typed errors below match these with errors.Is.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrCapacityExceeded      = errors.New("capacity exceeded")
	ErrCommandFailed         = errors.New("command failed")
	ErrProtocol              = errors.New("protocol error")
	ErrConfigurationMismatch = errors.New("configuration mismatch")
)

// CapacityError reports a transfer larger than the negotiated device buffer.
type CapacityError struct {
	Opcode    Opcode
	Requested int
	Limit     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d bytes exceeds device limit of %d", e.Opcode, e.Requested, e.Limit)
}

func (*CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// CommandError reports a NAK from the device.
type CommandError struct {
	Opcode Opcode
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: device returned NAK", e.Opcode)
}

func (*CommandError) Unwrap() error {
	return ErrCommandFailed
}

// StatusError reports a status byte that is neither ACK nor NAK.
type StatusError struct {
	Opcode Opcode
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unknown response status 0x%02X", e.Opcode, e.Status)
}

func (*StatusError) Unwrap() error {
	return ErrProtocol
}

// MismatchError reports a configuration command whose echoed value differs
// from the requested one: the device clamped or rejected the setting.
type MismatchError struct {
	Opcode    Opcode
	Requested uint32
	Actual    uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: requested %d, device applied %d", e.Opcode, e.Requested, e.Actual)
}

func (*MismatchError) Unwrap() error {
	return ErrConfigurationMismatch
}

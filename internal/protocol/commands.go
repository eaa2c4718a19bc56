package protocol

import "fmt"

// Opcode identifies an OpenEEPROM command. The set is closed: every value
// the device understands is declared below.
type Opcode byte

// OpenEEPROM commands
const (
	OpNOP                  Opcode = 0x00
	OpSync                 Opcode = 0x01
	OpGetInterfaceVersion  Opcode = 0x02
	OpGetMaxRxSize         Opcode = 0x03
	OpGetMaxTxSize         Opcode = 0x04
	OpToggleIO             Opcode = 0x05
	OpGetSupportedBusTypes Opcode = 0x06
	OpSetAddressBusWidth   Opcode = 0x07
	OpSetAddressHoldTime   Opcode = 0x08
	OpSetPulseWidthTime    Opcode = 0x09
	OpParallelRead         Opcode = 0x0A
	OpParallelWrite        Opcode = 0x0B
	OpSetSPIClockFrequency Opcode = 0x0C
	OpSetSPIMode           Opcode = 0x0D
	OpGetSupportedSPIModes Opcode = 0x0E
	OpSPITransmit          Opcode = 0x0F
)

// Response status bytes. Every command is answered by exactly one of these
// before any result payload.
const (
	StatusACK = 0x05
	StatusNAK = 0x06
)

// String returns the wire name of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpNOP:
		return "NOP"
	case OpSync:
		return "SYNC"
	case OpGetInterfaceVersion:
		return "GET_INTERFACE_VERSION"
	case OpGetMaxRxSize:
		return "GET_MAX_RX_SIZE"
	case OpGetMaxTxSize:
		return "GET_MAX_TX_SIZE"
	case OpToggleIO:
		return "TOGGLE_IO"
	case OpGetSupportedBusTypes:
		return "GET_SUPPORTED_BUS_TYPES"
	case OpSetAddressBusWidth:
		return "SET_ADDRESS_BUS_WIDTH"
	case OpSetAddressHoldTime:
		return "SET_ADDRESS_HOLD_TIME"
	case OpSetPulseWidthTime:
		return "SET_PULSE_WIDTH_TIME"
	case OpParallelRead:
		return "PARALLEL_READ"
	case OpParallelWrite:
		return "PARALLEL_WRITE"
	case OpSetSPIClockFrequency:
		return "SET_SPI_CLOCK_FREQUENCY"
	case OpSetSPIMode:
		return "SET_SPI_MODE"
	case OpGetSupportedSPIModes:
		return "GET_SUPPORTED_SPI_MODES"
	case OpSPITransmit:
		return "SPI_TRANSMIT"
	default:
		return fmt.Sprintf("OPCODE(0x%02X)", byte(op))
	}
}

// Valid reports whether op is part of the command set.
func (op Opcode) Valid() bool {
	return op <= OpSPITransmit
}

// ResultSize returns the fixed size of the result payload that follows an
// ACK for op. Variable-length results (PARALLEL_READ, SPI_TRANSMIT) report
// variable=true and depend on the count carried in the request.
func (op Opcode) ResultSize() (n int, variable bool) {
	switch op {
	case OpNOP, OpSync, OpParallelWrite:
		return 0, false
	case OpGetInterfaceVersion:
		return 2, false
	case OpGetMaxRxSize, OpGetMaxTxSize,
		OpSetAddressHoldTime, OpSetPulseWidthTime, OpSetSPIClockFrequency:
		return 4, false
	case OpToggleIO, OpGetSupportedBusTypes, OpSetAddressBusWidth,
		OpSetSPIMode, OpGetSupportedSPIModes:
		return 1, false
	case OpParallelRead, OpSPITransmit:
		return 0, true
	default:
		return 0, false
	}
}

// StatusName returns a human-readable name for a status byte.
func StatusName(status byte) string {
	switch status {
	case StatusACK:
		return "ACK"
	case StatusNAK:
		return "NAK"
	default:
		return "unknown status"
	}
}

// BusTypes is the bitmask returned by GET_SUPPORTED_BUS_TYPES.
type BusTypes uint8

// Bus type bits
const (
	BusParallel BusTypes = 1 << 0
	BusSPI      BusTypes = 1 << 1
)

// Has reports whether every bit in b is set.
func (t BusTypes) Has(b BusTypes) bool {
	return t&b == b
}

func (t BusTypes) String() string {
	switch {
	case t.Has(BusParallel | BusSPI):
		return "parallel,spi"
	case t.Has(BusParallel):
		return "parallel"
	case t.Has(BusSPI):
		return "spi"
	default:
		return "none"
	}
}

// SPIModes is the bitmask returned by GET_SUPPORTED_SPI_MODES; bit n set
// means SPI mode n is supported.
type SPIModes uint8

// Supports reports whether SPI mode is available.
func (m SPIModes) Supports(mode uint8) bool {
	return mode < 8 && m&(1<<mode) != 0
}

// List returns the supported mode numbers in ascending order.
func (m SPIModes) List() []uint8 {
	var modes []uint8
	for mode := uint8(0); mode < 4; mode++ {
		if m.Supports(mode) {
			modes = append(modes, mode)
		}
	}
	return modes
}

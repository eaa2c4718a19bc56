package chip

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/openeeprom/openeeprom/internal/protocol"
)

// Bus is the interface a chip is wired to.
type Bus uint8

// Bus types.
const (
	BusParallel Bus = iota
	BusSPI
)

// String returns the bus name.
func (b Bus) String() string {
	switch b {
	case BusParallel:
		return "parallel"
	case BusSPI:
		return "spi"
	default:
		return fmt.Sprintf("BUS(%d)", uint8(b))
	}
}

// Mask returns the programmer capability bit for the bus.
func (b Bus) Mask() protocol.BusTypes {
	switch b {
	case BusParallel:
		return protocol.BusParallel
	case BusSPI:
		return protocol.BusSPI
	default:
		return 0
	}
}

// ParallelParams configures the programmer's parallel bus. Times are in
// 100 ns device ticks.
type ParallelParams struct {
	AddressBusWidth uint8
	AddressHoldTime uint32
	PulseWidthTime  uint32
}

// SPIParams configures the programmer's SPI bus.
type SPIParams struct {
	PageSize int
	Clock    physic.Frequency
	Mode     spi.Mode
}

// ClockHz returns the clock in whole hertz, as sent on the wire.
func (p SPIParams) ClockHz() uint32 {
	return uint32(p.Clock / physic.Hertz)
}

// ModeNumber returns the clock polarity/phase mode 0-3.
func (p SPIParams) ModeNumber() uint8 {
	return uint8(p.Mode & spi.Mode3)
}

// Descriptor is the static description of a supported chip.
type Descriptor struct {
	Name        string
	Description string
	Size        int
	Bus         Bus

	// Only the parameters matching Bus are meaningful.
	Parallel ParallelParams
	SPI      SPIParams
}

// maxSPISize is the reach of the 16-bit address in 25xx READ and WRITE.
const maxSPISize = 1 << 16

// Validate reports whether the geometry can be addressed on the bus.
func (d Descriptor) Validate() error {
	if d.Size <= 0 {
		return fmt.Errorf("%s: size %d: %w", d.Name, d.Size, protocol.ErrInvalidArgument)
	}
	switch d.Bus {
	case BusParallel:
		w := d.Parallel.AddressBusWidth
		if w == 0 || w > 32 {
			return fmt.Errorf("%s: address bus width %d: %w", d.Name, w, protocol.ErrInvalidArgument)
		}
		if w < 32 && d.Size > 1<<w {
			return fmt.Errorf("%s: %d bytes exceed %d address lines: %w", d.Name, d.Size, w, protocol.ErrInvalidArgument)
		}
	case BusSPI:
		if d.Size > maxSPISize {
			return fmt.Errorf("%s: %d bytes exceed the 16-bit SPI address: %w", d.Name, d.Size, protocol.ErrInvalidArgument)
		}
		if d.SPI.PageSize < 0 {
			return fmt.Errorf("%s: page size %d: %w", d.Name, d.SPI.PageSize, protocol.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%s: unsupported bus %s: %w", d.Name, d.Bus, ErrUnknownChip)
	}
	return nil
}

// String returns a one-line summary.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %d bytes, %s)", d.Name, d.Description, d.Size, d.Bus)
}

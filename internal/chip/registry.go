package chip

import (
	"fmt"
	"sort"
	"strings"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// AT28C256 is the Atmel 32K x 8 parallel EEPROM.
var AT28C256 = Descriptor{
	Name:        "AT28C256",
	Description: "Atmel 256Kbit (32K x 8) parallel EEPROM",
	Size:        32768,
	Bus:         BusParallel,
	Parallel: ParallelParams{
		AddressBusWidth: 15,
		AddressHoldTime: 250,
		PulseWidthTime:  250,
	},
}

// LC25320 is the Microchip 25LC320 4K x 8 SPI EEPROM.
var LC25320 = Descriptor{
	Name:        "25LC320",
	Description: "Microchip 32Kbit (4K x 8) SPI EEPROM",
	Size:        4096,
	Bus:         BusSPI,
	SPI: SPIParams{
		PageSize: 32,
		Clock:    2 * physic.MegaHertz,
		Mode:     spi.Mode0,
	},
}

var registry = []Descriptor{AT28C256, LC25320}

// Supported returns the descriptors of every supported chip, sorted by name.
func Supported() []Descriptor {
	out := append([]Descriptor(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the supported chip names, sorted.
func Names() []string {
	descs := Supported()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

// Lookup finds a descriptor by name, ignoring case.
func Lookup(name string) (Descriptor, error) {
	for _, d := range registry {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%q (supported: %s): %w", name, strings.Join(Names(), ", "), ErrUnknownChip)
}

// New builds a fresh driver for the named chip.
func New(name string, opts ...Option) (Chip, error) {
	desc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return ForDescriptor(desc, opts...)
}

// ForDescriptor builds a driver for desc according to its bus.
func ForDescriptor(desc Descriptor, opts ...Option) (Chip, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	switch desc.Bus {
	case BusParallel:
		return NewParallel(desc, opts...), nil
	case BusSPI:
		return NewSPI(desc, opts...), nil
	default:
		return nil, fmt.Errorf("%s: unsupported bus %s: %w", desc.Name, desc.Bus, ErrUnknownChip)
	}
}

package chip

import (
	"fmt"

	"github.com/openeeprom/openeeprom/internal/client"
	"github.com/openeeprom/openeeprom/internal/protocol"
)

// 25xx instruction set.
const (
	cmdWRITE = 0x02
	cmdREAD  = 0x03
	cmdWREN  = 0x06
)

// spiHeader is the instruction byte plus a 16-bit big-endian address.
const spiHeader = 3

// SPI drives a page-oriented 25xx EEPROM on the programmer's SPI bus.
type SPI struct {
	base
}

var _ Chip = (*SPI)(nil)

// NewSPI creates a driver for an SPI chip.
func NewSPI(desc Descriptor, opts ...Option) *SPI {
	return &SPI{base: newBase(desc, opts)}
}

// Connect sets the SPI mode and clock for the chip.
func (s *SPI) Connect(c *client.Client) error {
	if err := s.beginConnect(c); err != nil {
		return err
	}

	params := s.desc.SPI
	if _, err := c.SetSPIMode(params.ModeNumber()); err != nil {
		return s.connectFailed(fmt.Errorf("%s: failed to set SPI mode: %w", s.desc.Name, err))
	}
	if _, err := c.SetSPIClockFreq(params.ClockHz()); err != nil {
		return s.connectFailed(fmt.Errorf("%s: failed to set SPI clock to %s: %w", s.desc.Name, params.Clock, err))
	}

	s.client = c
	s.state = StateConfigured
	return nil
}

// Read reads count bytes starting at address.
func (s *SPI) Read(address, count int) ([]byte, error) {
	if err := s.begin(StateReading, address, count); err != nil {
		return nil, err
	}
	defer s.end()

	limit, err := chunkLimit(protocol.OpSPITransmit, s.client.Capabilities().MaxSPITransmit-spiHeader, count)
	if err != nil && count > 0 {
		return nil, err
	}

	data := make([]byte, 0, count)
	for len(data) < count {
		n := min(count-len(data), limit)
		at := address + len(data)

		// Clock in n dummy bytes behind the header; MISO carries the data.
		frame := make([]byte, spiHeader+n)
		frame[0] = cmdREAD
		frame[1] = byte(at >> 8)
		frame[2] = byte(at)

		miso, err := s.client.SPITransmit(frame)
		if err != nil {
			return data, fmt.Errorf("%s: read at 0x%04X: %w", s.desc.Name, at, err)
		}
		data = append(data, miso[spiHeader:]...)
		s.reportProgress(len(data), count)
	}
	return data, nil
}

// Write writes data starting at address without crossing a page boundary
// in any single write cycle.
func (s *SPI) Write(address int, data []byte) (int, error) {
	if err := s.begin(StateWriting, address, len(data)); err != nil {
		return 0, err
	}
	defer s.end()
	return s.write(address, data)
}

// Erase overwrites the whole chip with 0xFF.
func (s *SPI) Erase() error {
	if err := s.begin(StateErasing, 0, s.desc.Size); err != nil {
		return err
	}
	defer s.end()
	_, err := s.write(0, s.erased())
	return err
}

func (s *SPI) write(address int, data []byte) (int, error) {
	limit, err := chunkLimit(protocol.OpSPITransmit, s.client.Capabilities().MaxSPITransmit-spiHeader, len(data))
	if err != nil && len(data) > 0 {
		return 0, err
	}
	pageSize := s.desc.SPI.PageSize

	written := 0
	for written < len(data) {
		at := address + written
		n := min(len(data)-written, limit)
		if pageSize > 0 {
			n = min(n, pageSize-at%pageSize)
		}

		if _, err := s.client.SPITransmit([]byte{cmdWREN}); err != nil {
			return written, fmt.Errorf("%s: write enable at 0x%04X: %w", s.desc.Name, at, err)
		}

		frame := make([]byte, 0, spiHeader+n)
		frame = append(frame, cmdWRITE, byte(at>>8), byte(at))
		frame = append(frame, data[written:written+n]...)
		if _, err := s.client.SPITransmit(frame); err != nil {
			return written, fmt.Errorf("%s: write at 0x%04X: %w", s.desc.Name, at, err)
		}

		s.writeCycle()
		written += n
		s.reportProgress(written, len(data))
	}
	return written, nil
}

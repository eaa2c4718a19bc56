package chip

import (
	"fmt"

	"github.com/openeeprom/openeeprom/internal/client"
	"github.com/openeeprom/openeeprom/internal/protocol"
)

// parallelPageSize caps one PARALLEL_WRITE. AT28C-series parts latch at most
// a 64-byte page per write cycle.
const parallelPageSize = 64

// Parallel drives a chip on the programmer's parallel bus.
type Parallel struct {
	base
}

var _ Chip = (*Parallel)(nil)

// NewParallel creates a driver for a parallel chip.
func NewParallel(desc Descriptor, opts ...Option) *Parallel {
	return &Parallel{base: newBase(desc, opts)}
}

// Connect sets the address bus width and timing for the chip.
func (p *Parallel) Connect(c *client.Client) error {
	if err := p.beginConnect(c); err != nil {
		return err
	}

	params := p.desc.Parallel
	if _, err := c.SetAddressBusWidth(params.AddressBusWidth); err != nil {
		return p.connectFailed(fmt.Errorf("%s: failed to set address bus width: %w", p.desc.Name, err))
	}
	if _, err := c.SetAddressHoldTime(params.AddressHoldTime); err != nil {
		return p.connectFailed(fmt.Errorf("%s: failed to set address hold time: %w", p.desc.Name, err))
	}
	if _, err := c.SetPulseWidthTime(params.PulseWidthTime); err != nil {
		return p.connectFailed(fmt.Errorf("%s: failed to set pulse width: %w", p.desc.Name, err))
	}

	p.client = c
	p.state = StateConfigured
	return nil
}

// Read reads count bytes starting at address.
func (p *Parallel) Read(address, count int) ([]byte, error) {
	if err := p.begin(StateReading, address, count); err != nil {
		return nil, err
	}
	defer p.end()

	limit, err := chunkLimit(protocol.OpParallelRead, p.client.Capabilities().MaxParallelRead, count)
	if err != nil && count > 0 {
		return nil, err
	}

	data := make([]byte, 0, count)
	for len(data) < count {
		n := min(count-len(data), limit)
		chunk, err := p.client.ParallelRead(uint32(address+len(data)), n)
		if err != nil {
			return data, fmt.Errorf("%s: read at 0x%04X: %w", p.desc.Name, address+len(data), err)
		}
		data = append(data, chunk...)
		p.reportProgress(len(data), count)
	}
	return data, nil
}

// Write writes data starting at address, one page per write cycle.
func (p *Parallel) Write(address int, data []byte) (int, error) {
	if err := p.begin(StateWriting, address, len(data)); err != nil {
		return 0, err
	}
	defer p.end()
	return p.write(address, data)
}

// Erase overwrites the whole chip with 0xFF.
func (p *Parallel) Erase() error {
	if err := p.begin(StateErasing, 0, p.desc.Size); err != nil {
		return err
	}
	defer p.end()
	_, err := p.write(0, p.erased())
	return err
}

func (p *Parallel) write(address int, data []byte) (int, error) {
	limit, err := chunkLimit(protocol.OpParallelWrite, p.client.Capabilities().MaxParallelWrite, len(data))
	if err != nil && len(data) > 0 {
		return 0, err
	}

	written := 0
	for written < len(data) {
		n := min(len(data)-written, limit, parallelPageSize)
		at := address + written
		if err := p.client.ParallelWrite(uint32(at), data[written:written+n]); err != nil {
			return written, fmt.Errorf("%s: write at 0x%04X: %w", p.desc.Name, at, err)
		}
		p.writeCycle()
		written += n
		p.reportProgress(written, len(data))
	}
	return written, nil
}

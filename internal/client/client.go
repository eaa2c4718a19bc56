// Package client implements the OpenEEPROM protocol client: command
// encoding, status checking, capability negotiation, and the bus
// configuration and raw transfer primitives used by chip drivers.
package client

import (
	"fmt"
	"time"

	"github.com/openeeprom/openeeprom/internal/debug"
	"github.com/openeeprom/openeeprom/internal/protocol"
	"github.com/openeeprom/openeeprom/internal/syncutil"
	"github.com/openeeprom/openeeprom/internal/transport"
)

// Client talks to one programmer over a Transport. Each command exchange
// holds the client lock, so a Client may be shared between goroutines
// without interleaving requests on the wire.
type Client struct {
	mu   syncutil.Mutex
	io   transport.Transport
	caps protocol.Capabilities
}

// Option configures a Client.
type Option func(*config)

type config struct {
	timeout time.Duration
}

// WithTimeout sets the receive timeout on transports that support one.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// New synchronizes with the programmer and negotiates its buffer sizes.
func New(t transport.Transport, opts ...Option) (*Client, error) {
	cfg := config{timeout: protocol.DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if d, ok := t.(transport.Deadliner); ok && cfg.timeout > 0 {
		if err := d.SetTimeout(cfg.timeout); err != nil {
			return nil, fmt.Errorf("failed to set transport timeout: %w", err)
		}
	}

	c := &Client{io: t}

	if err := c.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync with programmer: %w", err)
	}

	maxRx, err := c.MaxRxSize()
	if err != nil {
		return nil, fmt.Errorf("failed to read receive buffer size: %w", err)
	}

	maxTx, err := c.MaxTxSize()
	if err != nil {
		return nil, fmt.Errorf("failed to read transmit buffer size: %w", err)
	}

	c.caps = protocol.NewCapabilities(maxRx, maxTx)
	debug.Debugf("session: rx=%d tx=%d read=%d write=%d spi=%d",
		maxRx, maxTx, c.caps.MaxParallelRead, c.caps.MaxParallelWrite, c.caps.MaxSPITransmit)

	return c, nil
}

// NewWithCapabilities builds a client for a session whose limits are
// already known, skipping the bootstrap exchange.
func NewWithCapabilities(t transport.Transport, caps protocol.Capabilities) *Client {
	return &Client{io: t, caps: caps}
}

// Capabilities returns the negotiated transfer limits.
func (c *Client) Capabilities() protocol.Capabilities {
	return c.caps
}

// NOP sends a no-op; useful as a liveness check.
func (c *Client) NOP() error {
	return c.send(protocol.OpNOP, nil)
}

// Sync discards stale transport data and resynchronizes with the device.
func (c *Client) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.io.Flush(); err != nil {
		return fmt.Errorf("%s: flush: %w", protocol.OpSync, err)
	}
	n, err := fixedResult(protocol.OpSync)
	if err != nil {
		return err
	}
	_, err = c.exchangeLocked(protocol.NewCommand(protocol.OpSync, nil), n)
	return err
}

// InterfaceVersion returns the protocol version implemented by the firmware.
func (c *Client) InterfaceVersion() (uint16, error) {
	n, err := fixedResult(protocol.OpGetInterfaceVersion)
	if err != nil {
		return 0, err
	}
	result, err := c.exchange(protocol.NewCommand(protocol.OpGetInterfaceVersion, nil), n)
	if err != nil {
		return 0, err
	}
	return protocol.DecodeUint16(result)
}

// MaxRxSize returns the device receive buffer size in bytes.
func (c *Client) MaxRxSize() (uint32, error) {
	return query(c, protocol.OpGetMaxRxSize, u32)
}

// MaxTxSize returns the device transmit buffer size in bytes.
func (c *Client) MaxTxSize() (uint32, error) {
	return query(c, protocol.OpGetMaxTxSize, u32)
}

// ToggleIO switches the programmer's target I/O on or off.
func (c *Client) ToggleIO(state uint8) (uint8, error) {
	return setAndVerify(c, protocol.OpToggleIO, u8, state)
}

// SupportedBusTypes returns the bus types the programmer can drive.
func (c *Client) SupportedBusTypes() (protocol.BusTypes, error) {
	v, err := query(c, protocol.OpGetSupportedBusTypes, u8)
	return protocol.BusTypes(v), err
}

// SetAddressBusWidth sets the number of parallel address lines.
func (c *Client) SetAddressBusWidth(width uint8) (uint8, error) {
	return setAndVerify(c, protocol.OpSetAddressBusWidth, u8, width)
}

// SetAddressHoldTime sets the parallel address hold time in 100 ns ticks.
func (c *Client) SetAddressHoldTime(ticks uint32) (uint32, error) {
	return setAndVerify(c, protocol.OpSetAddressHoldTime, u32, ticks)
}

// SetPulseWidthTime sets the parallel write pulse width in 100 ns ticks.
func (c *Client) SetPulseWidthTime(ticks uint32) (uint32, error) {
	return setAndVerify(c, protocol.OpSetPulseWidthTime, u32, ticks)
}

// SetSPIClockFreq sets the SPI clock in Hz.
func (c *Client) SetSPIClockFreq(hz uint32) (uint32, error) {
	return setAndVerify(c, protocol.OpSetSPIClockFrequency, u32, hz)
}

// SetSPIMode selects SPI mode 0-3.
func (c *Client) SetSPIMode(mode uint8) (uint8, error) {
	return setAndVerify(c, protocol.OpSetSPIMode, u8, mode)
}

// SupportedSPIModes returns the SPI modes the programmer supports.
func (c *Client) SupportedSPIModes() (protocol.SPIModes, error) {
	v, err := query(c, protocol.OpGetSupportedSPIModes, u8)
	return protocol.SPIModes(v), err
}

// ParallelRead reads count bytes starting at address from a parallel chip.
func (c *Client) ParallelRead(address uint32, count int) ([]byte, error) {
	if count < 0 {
		return nil, fmt.Errorf("%s: negative count %d: %w", protocol.OpParallelRead, count, protocol.ErrInvalidArgument)
	}
	if count > c.caps.MaxParallelRead {
		return nil, &protocol.CapacityError{
			Opcode:    protocol.OpParallelRead,
			Requested: count,
			Limit:     c.caps.MaxParallelRead,
		}
	}

	cmd := protocol.NewCommand(protocol.OpParallelRead, protocol.ParallelReadData(address, uint32(count)))
	result, err := c.exchange(cmd, count)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []byte{}
	}
	return result, nil
}

// ParallelWrite writes data starting at address on a parallel chip.
func (c *Client) ParallelWrite(address uint32, data []byte) error {
	if len(data) > c.caps.MaxParallelWrite {
		return &protocol.CapacityError{
			Opcode:    protocol.OpParallelWrite,
			Requested: len(data),
			Limit:     c.caps.MaxParallelWrite,
		}
	}

	return c.send(protocol.OpParallelWrite, protocol.ParallelWriteData(address, data))
}

// send performs a round trip for a command whose ACK carries no result.
func (c *Client) send(op protocol.Opcode, payload []byte) error {
	n, err := fixedResult(op)
	if err != nil {
		return err
	}
	_, err = c.exchange(protocol.NewCommand(op, payload), n)
	return err
}

// SPITransmit clocks data out on MOSI and returns the bytes sampled on MISO
// during the same transfer. Callers pad data with dummy bytes to read.
func (c *Client) SPITransmit(data []byte) ([]byte, error) {
	if len(data) > c.caps.MaxSPITransmit {
		return nil, &protocol.CapacityError{
			Opcode:    protocol.OpSPITransmit,
			Requested: len(data),
			Limit:     c.caps.MaxSPITransmit,
		}
	}

	cmd := protocol.NewCommand(protocol.OpSPITransmit, protocol.SPITransmitData(data))
	result, err := c.exchange(cmd, len(data))
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []byte{}
	}
	return result, nil
}

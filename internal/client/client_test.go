package client

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeeprom/openeeprom/internal/protocol"
	"github.com/openeeprom/openeeprom/internal/simulator"
	"github.com/openeeprom/openeeprom/internal/transport"
)

func newTestClient(respond transport.Responder) (*Client, *transport.Fake) {
	fake := transport.NewFake(respond)
	return NewWithCapabilities(fake, protocol.NewCapabilities(1024, 1024)), fake
}

// sizes answers the bootstrap exchange with the given buffer sizes.
func sizes(maxRx, maxTx uint32) transport.Responder {
	return func(req []byte) []byte {
		switch protocol.Opcode(req[0]) {
		case protocol.OpGetMaxRxSize:
			return append([]byte{protocol.StatusACK}, protocol.Uint32Data(maxRx)...)
		case protocol.OpGetMaxTxSize:
			return append([]byte{protocol.StatusACK}, protocol.Uint32Data(maxTx)...)
		default:
			return []byte{protocol.StatusACK}
		}
	}
}

func TestNew_Bootstrap(t *testing.T) {
	t.Parallel()
	fake := transport.NewFake(sizes(256, 128))
	fake.Queue(0xAA, 0xBB) // stale bytes from an earlier session

	c, err := New(fake)
	require.NoError(t, err)

	assert.Equal(t, [][]byte{{0x01}, {0x03}, {0x04}}, fake.Sent)
	assert.Equal(t, 1, fake.Flushes)

	caps := c.Capabilities()
	assert.Equal(t, uint32(256), caps.MaxRxSize)
	assert.Equal(t, uint32(128), caps.MaxTxSize)
	assert.Equal(t, 127, caps.MaxParallelRead)
	assert.Equal(t, 247, caps.MaxParallelWrite)
	assert.Equal(t, 127, caps.MaxSPITransmit)
}

func TestNew_SimulatedProgrammer(t *testing.T) {
	t.Parallel()
	prog := simulator.New()
	prog.MaxRx = 64
	prog.MaxTx = 256

	c, err := New(prog)
	require.NoError(t, err)
	assert.Equal(t, protocol.NewCapabilities(64, 256), c.Capabilities())
	assert.Equal(t, []protocol.Opcode{protocol.OpSync, protocol.OpGetMaxRxSize, protocol.OpGetMaxTxSize}, prog.Commands())
}

func TestNew_SyncFailure(t *testing.T) {
	t.Parallel()
	fake := transport.NewFake(func([]byte) []byte { return []byte{protocol.StatusNAK} })

	_, err := New(fake)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrCommandFailed)
	assert.Contains(t, err.Error(), "sync")
	assert.Len(t, fake.Sent, 1)
}

func TestNew_NoResponse(t *testing.T) {
	t.Parallel()
	_, err := New(transport.NewFake(nil))
	require.ErrorIs(t, err, transport.ErrTimeout)
}

type deadlineFake struct {
	*transport.Fake
	timeouts []time.Duration
}

func (d *deadlineFake) SetTimeout(timeout time.Duration) error {
	d.timeouts = append(d.timeouts, timeout)
	return nil
}

func TestNew_AppliesTimeout(t *testing.T) {
	t.Parallel()
	d := &deadlineFake{Fake: transport.NewFake(sizes(64, 64))}

	_, err := New(d, WithTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, d.timeouts)
}

func TestParallelWrite_ByteStream(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(transport.Ack(0))

	require.NoError(t, c.ParallelWrite(0, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{11, 0, 0, 0, 0, 4, 0, 0, 0, 1, 2, 3, 4}, fake.Last())
}

func TestSPITransmit_ByteStream(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(func([]byte) []byte {
		return []byte{protocol.StatusACK, 0xA, 0xB, 0xC, 0xD}
	})

	got, err := c.SPITransmit([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{15, 4, 0, 0, 0, 1, 2, 3, 4}, fake.Last())
	assert.Equal(t, []byte{0xA, 0xB, 0xC, 0xD}, got)
}

func TestParallelRead_ByteStream(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(func([]byte) []byte {
		return []byte{protocol.StatusACK, 0x10, 0x20}
	})

	got, err := c.ParallelRead(0x1234, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 0x34, 0x12, 0, 0, 2, 0, 0, 0}, fake.Last())
	assert.Equal(t, []byte{0x10, 0x20}, got)
}

func TestParallelRead_ZeroCount(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(transport.Ack(0))

	got, err := c.ParallelRead(0, 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNAK_SkipsResult(t *testing.T) {
	t.Parallel()
	// The result bytes after a NAK must stay unread.
	c, fake := newTestClient(func([]byte) []byte {
		return []byte{protocol.StatusNAK, 0x01, 0x02}
	})

	_, err := c.ParallelRead(0, 2)
	require.ErrorIs(t, err, protocol.ErrCommandFailed)

	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.OpParallelRead, cmdErr.Opcode)
	assert.Equal(t, 1, fake.Receives)
	assert.Equal(t, 2, fake.Pending())
}

func TestUnknownStatus(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(func([]byte) []byte { return []byte{0x99} })

	err := c.NOP()
	var statusErr *protocol.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, byte(0x99), statusErr.Status)
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestCapacityExceeded_NothingSent(t *testing.T) {
	t.Parallel()
	fake := transport.NewFake(transport.Ack(0))
	c := NewWithCapabilities(fake, protocol.NewCapabilities(16, 16))

	tests := []struct {
		name string
		call func() error
	}{
		{"parallel read", func() error { _, err := c.ParallelRead(0, 16); return err }},
		{"parallel write", func() error { return c.ParallelWrite(0, make([]byte, 8)) }},
		{"spi transmit", func() error { _, err := c.SPITransmit(make([]byte, 12)); return err }},
	}
	for _, tt := range tests {
		err := tt.call()
		require.ErrorIs(t, err, protocol.ErrCapacityExceeded, tt.name)
		var capErr *protocol.CapacityError
		require.ErrorAs(t, err, &capErr, tt.name)
	}
	assert.Empty(t, fake.Sent)
}

func TestParallelRead_NegativeCount(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(transport.Ack(0))
	_, err := c.ParallelRead(0, -1)
	require.ErrorIs(t, err, protocol.ErrInvalidArgument)
	assert.Empty(t, fake.Sent)
}

func TestSetAndVerify_Mismatch(t *testing.T) {
	t.Parallel()
	prog := simulator.New()
	prog.MaxSPIClock = 1_000_000
	c := NewWithCapabilities(prog, protocol.NewCapabilities(1024, 1024))

	actual, err := c.SetSPIClockFreq(2_000_000)
	require.ErrorIs(t, err, protocol.ErrConfigurationMismatch)
	assert.Equal(t, uint32(1_000_000), actual)

	var mismatch *protocol.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint32(2_000_000), mismatch.Requested)
	assert.Equal(t, uint32(1_000_000), mismatch.Actual)
	assert.Equal(t, protocol.OpSetSPIClockFrequency, mismatch.Opcode)
}

func TestConfiguration_Simulated(t *testing.T) {
	t.Parallel()
	prog := simulator.New()
	c := NewWithCapabilities(prog, protocol.NewCapabilities(1024, 1024))

	width, err := c.SetAddressBusWidth(15)
	require.NoError(t, err)
	assert.Equal(t, uint8(15), width)

	hold, err := c.SetAddressHoldTime(250)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), hold)

	pulse, err := c.SetPulseWidthTime(250)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), pulse)

	mode, err := c.SetSPIMode(3)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), mode)

	assert.Equal(t, uint8(15), prog.AddressBusWidth)
	assert.Equal(t, uint32(250), prog.AddressHoldTime)
	assert.Equal(t, uint32(250), prog.PulseWidthTime)
	assert.Equal(t, uint8(3), prog.SPIMode)
}

func TestQueries_Simulated(t *testing.T) {
	t.Parallel()
	prog := simulator.New()
	prog.InterfaceVersion = 3
	prog.BusTypes = protocol.BusSPI
	prog.SPIModes = 0b0101
	c := NewWithCapabilities(prog, protocol.NewCapabilities(1024, 1024))

	version, err := c.InterfaceVersion()
	require.NoError(t, err)
	assert.Equal(t, uint16(3), version)

	buses, err := c.SupportedBusTypes()
	require.NoError(t, err)
	assert.Equal(t, protocol.BusSPI, buses)

	modes, err := c.SupportedSPIModes()
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 2}, modes.List())
}

func TestToggleIO(t *testing.T) {
	t.Parallel()
	prog := simulator.New()
	c := NewWithCapabilities(prog, protocol.NewCapabilities(1024, 1024))

	state, err := c.ToggleIO(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), state)
	assert.Equal(t, uint8(1), prog.IOState)

	// The simulated device only keeps bit 0, so 2 echoes back as 0.
	state, err = c.ToggleIO(2)
	require.ErrorIs(t, err, protocol.ErrConfigurationMismatch)
	assert.Equal(t, uint8(0), state)
}

func TestErrorsPropagate(t *testing.T) {
	t.Parallel()
	boom := errors.New("line down")
	c, fake := newTestClient(transport.Ack(0))
	fake.SendErr = boom

	err := c.NOP()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "NOP")

	fake.SendErr = nil
	c2, _ := newTestClient(nil)
	_, err = c2.MaxTxSize()
	require.ErrorIs(t, err, transport.ErrTimeout)
}

func TestShortResult(t *testing.T) {
	t.Parallel()
	// ACK with only half of a u32 result.
	c, _ := newTestClient(func([]byte) []byte { return []byte{protocol.StatusACK, 0x01, 0x02} })
	_, err := c.MaxRxSize()
	require.ErrorIs(t, err, transport.ErrTimeout)
}

func TestParallelRoundTrip_Simulated(t *testing.T) {
	t.Parallel()
	prog := simulator.New()
	prog.AttachParallel(simulator.NewParallelChip(1024))
	c, err := New(prog)
	require.NoError(t, err)

	want := []byte("openeeprom")
	require.NoError(t, c.ParallelWrite(100, want))
	got, err := c.ParallelRead(100, len(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNAK_EveryCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		op   protocol.Opcode
		call func(c *Client) error
	}{
		{"NOP", protocol.OpNOP, func(c *Client) error { return c.NOP() }},
		{"Sync", protocol.OpSync, func(c *Client) error { return c.Sync() }},
		{"InterfaceVersion", protocol.OpGetInterfaceVersion, func(c *Client) error { _, err := c.InterfaceVersion(); return err }},
		{"MaxRxSize", protocol.OpGetMaxRxSize, func(c *Client) error { _, err := c.MaxRxSize(); return err }},
		{"MaxTxSize", protocol.OpGetMaxTxSize, func(c *Client) error { _, err := c.MaxTxSize(); return err }},
		{"ToggleIO", protocol.OpToggleIO, func(c *Client) error { _, err := c.ToggleIO(1); return err }},
		{"SupportedBusTypes", protocol.OpGetSupportedBusTypes, func(c *Client) error { _, err := c.SupportedBusTypes(); return err }},
		{"SetAddressBusWidth", protocol.OpSetAddressBusWidth, func(c *Client) error { _, err := c.SetAddressBusWidth(15); return err }},
		{"SetAddressHoldTime", protocol.OpSetAddressHoldTime, func(c *Client) error { _, err := c.SetAddressHoldTime(250); return err }},
		{"SetPulseWidthTime", protocol.OpSetPulseWidthTime, func(c *Client) error { _, err := c.SetPulseWidthTime(250); return err }},
		{"SetSPIClockFreq", protocol.OpSetSPIClockFrequency, func(c *Client) error { _, err := c.SetSPIClockFreq(2_000_000); return err }},
		{"SetSPIMode", protocol.OpSetSPIMode, func(c *Client) error { _, err := c.SetSPIMode(0); return err }},
		{"SupportedSPIModes", protocol.OpGetSupportedSPIModes, func(c *Client) error { _, err := c.SupportedSPIModes(); return err }},
		{"ParallelRead", protocol.OpParallelRead, func(c *Client) error { _, err := c.ParallelRead(0, 4); return err }},
		{"ParallelWrite", protocol.OpParallelWrite, func(c *Client) error { return c.ParallelWrite(0, []byte{1, 2}) }},
		{"SPITransmit", protocol.OpSPITransmit, func(c *Client) error { _, err := c.SPITransmit([]byte{1, 2, 3}); return err }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Bytes after a NAK stay unread.
			trailer := []byte{0xDE, 0xAD, 0xBE, 0xEF}
			c, fake := newTestClient(func([]byte) []byte {
				return append([]byte{protocol.StatusNAK}, trailer...)
			})

			err := tt.call(c)
			require.ErrorIs(t, err, protocol.ErrCommandFailed)

			var cmdErr *protocol.CommandError
			require.ErrorAs(t, err, &cmdErr)
			assert.Equal(t, tt.op, cmdErr.Opcode)
			assert.Len(t, fake.Sent, 1)
			assert.Equal(t, 1, fake.Receives)
			assert.Equal(t, len(trailer), fake.Pending())
		})
	}
}

func TestFixedResult(t *testing.T) {
	t.Parallel()
	n, err := fixedResult(protocol.OpGetInterfaceVersion)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = fixedResult(protocol.OpSPITransmit)
	require.ErrorIs(t, err, protocol.ErrInvalidArgument)

	// A field narrower than the opcode's result is rejected before sending.
	c, fake := newTestClient(transport.Ack(4))
	_, err = query(c, protocol.OpGetMaxRxSize, u8)
	require.ErrorIs(t, err, protocol.ErrProtocol)
	assert.Empty(t, fake.Sent)
}

func TestConcurrentCallers_DoNotInterleave(t *testing.T) {
	t.Parallel()
	mem := simulator.NewParallelChip(1024)
	for i := range mem.Memory {
		mem.Memory[i] = byte(i / 64)
	}
	prog := simulator.New()
	prog.AttachParallel(mem)
	c, err := New(prog)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got, err := c.ParallelRead(uint32(g*64), 64)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(got, bytes.Repeat([]byte{byte(g)}, 64)) {
					errs <- fmt.Errorf("reader %d got bytes from another region", g)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// Package simulator provides a virtual OpenEEPROM programmer with virtual
// chips attached. It speaks the wire protocol byte for byte, so it can stand
// in for real hardware as a transport.Transport or behind a socket.
package simulator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/openeeprom/openeeprom/internal/protocol"
	"github.com/openeeprom/openeeprom/internal/syncutil"
	"github.com/openeeprom/openeeprom/internal/transport"
)

// Defaults for a freshly built programmer.
const (
	DefaultBufferSize       = 1024
	DefaultInterfaceVersion = 1
	DefaultMaxBusWidth      = 24
	DefaultMaxSPIClock      = 8_000_000
)

// SPIDevice is a chip on the programmer's SPI bus. Transfer handles one
// chip-select-low transaction and returns the MISO bytes, the same length
// as mosi.
type SPIDevice interface {
	Transfer(mosi []byte) []byte
}

// Programmer is a virtual programmer.
type Programmer struct {
	mu syncutil.Mutex

	MaxRx            uint32
	MaxTx            uint32
	InterfaceVersion uint16
	BusTypes         protocol.BusTypes
	SPIModes         protocol.SPIModes
	MaxBusWidth      uint8
	MaxSPIClock      uint32

	// Device state set by configuration commands.
	IOState         uint8
	AddressBusWidth uint8
	AddressHoldTime uint32
	PulseWidthTime  uint32
	SPIClock        uint32
	SPIMode         uint8

	// StatusOverride forces the status byte answered for an opcode.
	StatusOverride map[protocol.Opcode]byte

	// Log records every decoded command.
	Log []protocol.Command

	parallel *ParallelChip
	spi      SPIDevice

	in     []byte
	out    []byte
	closed bool
}

// New creates a programmer with symmetric default buffers and both buses.
func New() *Programmer {
	return &Programmer{
		MaxRx:            DefaultBufferSize,
		MaxTx:            DefaultBufferSize,
		InterfaceVersion: DefaultInterfaceVersion,
		BusTypes:         protocol.BusParallel | protocol.BusSPI,
		SPIModes:         0b1111,
		MaxBusWidth:      DefaultMaxBusWidth,
		MaxSPIClock:      DefaultMaxSPIClock,
		StatusOverride:   map[protocol.Opcode]byte{},
	}
}

// AttachParallel connects a chip to the parallel bus.
func (p *Programmer) AttachParallel(chip *ParallelChip) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parallel = chip
}

// AttachSPI connects a device to the SPI bus.
func (p *Programmer) AttachSPI(dev SPIDevice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spi = dev
}

// Commands returns the opcodes received so far, in order.
func (p *Programmer) Commands() []protocol.Opcode {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]protocol.Opcode, len(p.Log))
	for i, c := range p.Log {
		ops[i] = c.Opcode
	}
	return ops
}

// ClearLog forgets logged commands.
func (p *Programmer) ClearLog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Log = nil
}

// Send feeds host bytes to the programmer. Complete commands are executed
// immediately and their responses queued for Receive.
func (p *Programmer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	p.in = append(p.in, data...)
	p.process()
	return nil
}

// Receive returns exactly n response bytes.
func (p *Programmer) Receive(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, transport.ErrClosed
	}
	if len(p.out) < n {
		return nil, fmt.Errorf("simulator: want %d bytes, have %d: %w", n, len(p.out), transport.ErrTimeout)
	}
	data := append([]byte(nil), p.out[:n]...)
	p.out = p.out[n:]
	return data, nil
}

// Flush drops unread responses and any partial command.
func (p *Programmer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	p.in = nil
	p.out = nil
	return nil
}

// Close shuts the programmer down.
func (p *Programmer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Serve runs the programmer over a byte stream until it fails or reaches
// EOF, e.g. on the server end of a TCP connection.
func (p *Programmer) Serve(conn io.ReadWriter) error {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.in = append(p.in, buf[:n]...)
			p.process()
			out := p.out
			p.out = nil
			p.mu.Unlock()

			if len(out) > 0 {
				if _, werr := conn.Write(out); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// process executes every complete command waiting in the input buffer.
func (p *Programmer) process() {
	for len(p.in) > 0 {
		n, ok := requestLen(p.in)
		if !ok {
			if !protocol.Opcode(p.in[0]).Valid() {
				// Unknown opcode: reject and resynchronize.
				p.out = append(p.out, protocol.StatusNAK)
				p.in = nil
			}
			return
		}

		cmd, err := protocol.DecodeCommand(p.in[:n])
		p.in = p.in[n:]
		if err != nil {
			p.out = append(p.out, protocol.StatusNAK)
			continue
		}
		p.Log = append(p.Log, cmd)

		if uint32(n) > p.MaxRx {
			p.out = append(p.out, protocol.StatusNAK)
			continue
		}

		p.out = append(p.out, p.execute(cmd)...)
	}
}

// requestLen returns the full length of the request at the head of buf,
// or ok=false if more bytes are needed or the opcode is unknown.
func requestLen(buf []byte) (n int, ok bool) {
	op := protocol.Opcode(buf[0])
	var header int
	switch op {
	case protocol.OpNOP, protocol.OpSync, protocol.OpGetInterfaceVersion,
		protocol.OpGetMaxRxSize, protocol.OpGetMaxTxSize,
		protocol.OpGetSupportedBusTypes, protocol.OpGetSupportedSPIModes:
		header = 0
	case protocol.OpToggleIO, protocol.OpSetAddressBusWidth, protocol.OpSetSPIMode:
		header = 1
	case protocol.OpSetAddressHoldTime, protocol.OpSetPulseWidthTime, protocol.OpSetSPIClockFrequency:
		header = 4
	case protocol.OpParallelRead:
		header = 8
	case protocol.OpParallelWrite:
		if len(buf) < 9 {
			return 0, false
		}
		header = 8 + int(binary.LittleEndian.Uint32(buf[5:9]))
	case protocol.OpSPITransmit:
		if len(buf) < 5 {
			return 0, false
		}
		header = 4 + int(binary.LittleEndian.Uint32(buf[1:5]))
	default:
		return 0, false
	}
	if len(buf) < 1+header {
		return 0, false
	}
	return 1 + header, true
}

func (p *Programmer) execute(cmd protocol.Command) []byte {
	if status, ok := p.StatusOverride[cmd.Opcode]; ok && status != protocol.StatusACK {
		return []byte{status}
	}

	result, ok := p.run(cmd)
	if !ok {
		return []byte{protocol.StatusNAK}
	}
	if uint32(1+len(result)) > p.MaxTx {
		return []byte{protocol.StatusNAK}
	}
	return append([]byte{protocol.StatusACK}, result...)
}

func (p *Programmer) run(cmd protocol.Command) ([]byte, bool) {
	args := cmd.Payload
	switch cmd.Opcode {
	case protocol.OpNOP, protocol.OpSync:
		return nil, true

	case protocol.OpGetInterfaceVersion:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, p.InterfaceVersion)
		return out, true

	case protocol.OpGetMaxRxSize:
		return protocol.Uint32Data(p.MaxRx), true

	case protocol.OpGetMaxTxSize:
		return protocol.Uint32Data(p.MaxTx), true

	case protocol.OpToggleIO:
		p.IOState = args[0] & 0x01
		return []byte{p.IOState}, true

	case protocol.OpGetSupportedBusTypes:
		return []byte{byte(p.BusTypes)}, true

	case protocol.OpSetAddressBusWidth:
		p.AddressBusWidth = min(args[0], p.MaxBusWidth)
		return []byte{p.AddressBusWidth}, true

	case protocol.OpSetAddressHoldTime:
		p.AddressHoldTime = binary.LittleEndian.Uint32(args)
		return protocol.Uint32Data(p.AddressHoldTime), true

	case protocol.OpSetPulseWidthTime:
		p.PulseWidthTime = binary.LittleEndian.Uint32(args)
		return protocol.Uint32Data(p.PulseWidthTime), true

	case protocol.OpParallelRead:
		if p.parallel == nil || !p.BusTypes.Has(protocol.BusParallel) {
			return nil, false
		}
		address := binary.LittleEndian.Uint32(args[0:4])
		count := binary.LittleEndian.Uint32(args[4:8])
		return p.parallel.read(p.mask(address), int(count))

	case protocol.OpParallelWrite:
		if p.parallel == nil || !p.BusTypes.Has(protocol.BusParallel) {
			return nil, false
		}
		address := binary.LittleEndian.Uint32(args[0:4])
		return nil, p.parallel.write(p.mask(address), args[8:])

	case protocol.OpSetSPIClockFrequency:
		p.SPIClock = min(binary.LittleEndian.Uint32(args), p.MaxSPIClock)
		return protocol.Uint32Data(p.SPIClock), true

	case protocol.OpSetSPIMode:
		if p.SPIModes.Supports(args[0]) {
			p.SPIMode = args[0]
		}
		return []byte{p.SPIMode}, true

	case protocol.OpGetSupportedSPIModes:
		return []byte{byte(p.SPIModes)}, true

	case protocol.OpSPITransmit:
		if !p.BusTypes.Has(protocol.BusSPI) {
			return nil, false
		}
		mosi := args[4:]
		if p.spi == nil {
			// Nothing drives MISO; the line floats high.
			miso := make([]byte, len(mosi))
			for i := range miso {
				miso[i] = 0xFF
			}
			return miso, true
		}
		return p.spi.Transfer(mosi), true

	default:
		return nil, false
	}
}

// mask drops address bits above the configured bus width, as the physical
// address lines would.
func (p *Programmer) mask(address uint32) uint32 {
	if p.AddressBusWidth == 0 || p.AddressBusWidth >= 32 {
		return address
	}
	return address & (1<<p.AddressBusWidth - 1)
}

// Package serial implements the programmer transport over a USB/serial port.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/openeeprom/openeeprom/internal/protocol"
	"github.com/openeeprom/openeeprom/internal/transport"
)

// pollInterval is the read timeout of a single port read; Receive loops on
// it until its own deadline passes.
const pollInterval = 100 * time.Millisecond

// Port is a serial-port transport.
type Port struct {
	port     serial.Port
	portName string
	timeout  time.Duration
}

// Open opens a serial port with the specified baud rate.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	p, err := New(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an already opened port.
func New(port serial.Port, portName string) (*Port, error) {
	if err := port.SetReadTimeout(pollInterval); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		timeout:  protocol.DefaultTimeout,
	}, nil
}

// Send writes all of data and waits for it to leave the host.
func (p *Port) Send(data []byte) error {
	if p.port == nil {
		return transport.ErrClosed
	}
	for len(data) > 0 {
		n, err := p.port.Write(data)
		if err != nil {
			return fmt.Errorf("serial %s: write: %w", p.portName, err)
		}
		if n == 0 {
			return fmt.Errorf("serial %s: write made no progress", p.portName)
		}
		data = data[n:]
	}
	if err := p.port.Drain(); err != nil {
		return fmt.Errorf("serial %s: drain: %w", p.portName, err)
	}
	return nil
}

// Receive reads exactly n bytes, failing with transport.ErrTimeout when the
// device stays silent past the timeout.
func (p *Port) Receive(n int) ([]byte, error) {
	if p.port == nil {
		return nil, transport.ErrClosed
	}

	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(p.timeout)

	for got < n {
		m, err := p.port.Read(buf[got:])
		if err != nil {
			return nil, fmt.Errorf("serial %s: read: %w", p.portName, err)
		}
		got += m
		if m == 0 && time.Now().After(deadline) {
			return nil, fmt.Errorf("serial %s: got %d of %d bytes: %w", p.portName, got, n, transport.ErrTimeout)
		}
	}

	return buf, nil
}

// Flush discards any buffered data in both directions.
func (p *Port) Flush() error {
	if p.port == nil {
		return transport.ErrClosed
	}
	if err := p.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("serial %s: reset input: %w", p.portName, err)
	}
	if err := p.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("serial %s: reset output: %w", p.portName, err)
	}
	return nil
}

// SetTimeout sets how long Receive waits for the device.
func (p *Port) SetTimeout(timeout time.Duration) error {
	p.timeout = timeout
	return nil
}

// Close flushes and closes the serial port.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	_ = p.Flush()
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("serial %s: close: %w", p.portName, err)
	}
	return nil
}

var _ transport.Transport = (*Port)(nil)

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// flushWindow is how long Flush waits for stray bytes before giving up.
const flushWindow = 5 * time.Millisecond

// TCP carries the protocol over a stream socket, e.g. a programmer behind a
// serial-to-network bridge.
type TCP struct {
	conn    net.Conn
	address string
	timeout time.Duration
}

// DialTCP connects to address ("host:port").
func DialTCP(address string, timeout time.Duration) (*TCP, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return NewTCP(conn, timeout), nil
}

// NewTCP wraps an established connection.
func NewTCP(conn net.Conn, timeout time.Duration) *TCP {
	return &TCP{
		conn:    conn,
		address: conn.RemoteAddr().String(),
		timeout: timeout,
	}
}

// Send writes data to the socket.
func (t *TCP) Send(data []byte) error {
	if t.conn == nil {
		return ErrClosed
	}
	if err := t.conn.SetWriteDeadline(t.deadline()); err != nil {
		return fmt.Errorf("tcp %s: set write deadline: %w", t.address, err)
	}
	if _, err := t.conn.Write(data); err != nil {
		return t.wrap("write", err)
	}
	return nil
}

// Receive reads exactly n bytes.
func (t *TCP) Receive(n int) ([]byte, error) {
	if t.conn == nil {
		return nil, ErrClosed
	}
	if err := t.conn.SetReadDeadline(t.deadline()); err != nil {
		return nil, fmt.Errorf("tcp %s: set read deadline: %w", t.address, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, t.wrap("read", err)
	}
	return buf, nil
}

// Flush drains bytes already waiting on the socket.
func (t *TCP) Flush() error {
	if t.conn == nil {
		return ErrClosed
	}
	buf := make([]byte, 256)
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(flushWindow)); err != nil {
			return fmt.Errorf("tcp %s: set read deadline: %w", t.address, err)
		}
		n, err := t.conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return t.wrap("flush", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// SetTimeout sets the deadline applied to each send and receive.
func (t *TCP) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Close closes the socket.
func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("tcp %s: close: %w", t.address, err)
	}
	return nil
}

func (t *TCP) deadline() time.Time {
	if t.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(t.timeout)
}

func (t *TCP) wrap(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("tcp %s: %s: %w", t.address, op, ErrTimeout)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("tcp %s: %s: %w", t.address, op, ErrClosed)
	default:
		return fmt.Errorf("tcp %s: %s: %w", t.address, op, err)
	}
}

// Package transport defines the byte channel between the host and the
// programmer, with TCP and in-memory implementations. The serial-port
// implementation lives in internal/serial.
package transport

import (
	"errors"
	"time"
)

// Transport is a duplex byte channel with exact-length receives.
type Transport interface {
	// Send writes all of data.
	Send(data []byte) error

	// Receive blocks until exactly n bytes have arrived, or fails.
	Receive(n int) ([]byte, error)

	// Flush discards any buffered-but-unread bytes.
	Flush() error

	// Close releases the underlying connection.
	Close() error
}

// Deadliner is implemented by transports whose receive can time out.
type Deadliner interface {
	SetTimeout(timeout time.Duration) error
}

var (
	// ErrTimeout means the device did not answer in time. It is distinct
	// from a NAK, which is an answer.
	ErrTimeout = errors.New("transport timeout")

	// ErrClosed is returned for operations on a closed transport.
	ErrClosed = errors.New("transport is closed")
)

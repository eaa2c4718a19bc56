package transport

import (
	"fmt"

	"github.com/openeeprom/openeeprom/internal/protocol"
)

// Responder computes the bytes a fake device sends back for one request.
type Responder func(request []byte) []byte

// Fake is an in-memory Transport. Every Send is recorded; replies come from
// the Responder and from bytes queued with Queue.
type Fake struct {
	// Sent holds a copy of every Send, in order.
	Sent [][]byte

	// Receives counts Receive calls, successful or not.
	Receives int

	// Flushes counts Flush calls.
	Flushes int

	// SendErr, when set, is returned by every Send.
	SendErr error

	respond Responder
	rx      []byte
	closed  bool
}

// NewFake creates a fake transport. respond may be nil.
func NewFake(respond Responder) *Fake {
	return &Fake{respond: respond}
}

// Ack returns a Responder that answers every request with ACK followed by
// resultLen zero bytes.
func Ack(resultLen int) Responder {
	return func([]byte) []byte {
		return append([]byte{protocol.StatusACK}, make([]byte, resultLen)...)
	}
}

// Queue appends bytes to the receive buffer, as if they were already
// waiting on the wire.
func (f *Fake) Queue(data ...byte) {
	f.rx = append(f.rx, data...)
}

// Send records data and queues the responder's reply.
func (f *Fake) Send(data []byte) error {
	if f.closed {
		return ErrClosed
	}
	if f.SendErr != nil {
		return f.SendErr
	}
	sent := append([]byte(nil), data...)
	f.Sent = append(f.Sent, sent)
	if f.respond != nil {
		f.rx = append(f.rx, f.respond(sent)...)
	}
	return nil
}

// Receive returns exactly n queued bytes, or ErrTimeout when fewer are
// available (the buffer is left untouched in that case).
func (f *Fake) Receive(n int) ([]byte, error) {
	f.Receives++
	if f.closed {
		return nil, ErrClosed
	}
	if len(f.rx) < n {
		return nil, fmt.Errorf("fake: want %d bytes, have %d: %w", n, len(f.rx), ErrTimeout)
	}
	out := append([]byte(nil), f.rx[:n]...)
	f.rx = f.rx[n:]
	return out, nil
}

// Flush drops any queued bytes.
func (f *Fake) Flush() error {
	if f.closed {
		return ErrClosed
	}
	f.Flushes++
	f.rx = nil
	return nil
}

// Close marks the fake closed.
func (f *Fake) Close() error {
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	return f.closed
}

// Pending returns the number of unread bytes.
func (f *Fake) Pending() int {
	return len(f.rx)
}

// Last returns the most recent Send, or nil.
func (f *Fake) Last() []byte {
	if len(f.Sent) == 0 {
		return nil
	}
	return f.Sent[len(f.Sent)-1]
}

// Reset forgets recorded sends and counters, keeping the responder.
func (f *Fake) Reset() {
	f.Sent = nil
	f.Receives = 0
	f.Flushes = 0
	f.rx = nil
}

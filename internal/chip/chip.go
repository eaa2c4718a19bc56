// Package chip turns whole-chip read, write and erase requests into
// protocol-legal transfers for each supported EEPROM family.
package chip

import (
	"errors"
	"fmt"
	"time"

	"github.com/openeeprom/openeeprom/internal/client"
	"github.com/openeeprom/openeeprom/internal/protocol"
)

// Chip errors.
var (
	ErrNotConnected = errors.New("chip not connected")
	ErrDisconnected = errors.New("chip disconnected")
	ErrBusy         = errors.New("chip busy")
	ErrUnknownChip  = errors.New("unknown chip")
)

// DefaultWriteCycle is the time the chip needs to commit a written chunk.
const DefaultWriteCycle = 5 * time.Millisecond

// ProgressCallback is called after every chunk with the bytes done so far.
type ProgressCallback func(current, total int)

// Chip is a driver for one physical chip behind a programmer.
type Chip interface {
	Descriptor() Descriptor

	// Connect configures the programmer's bus for this chip.
	Connect(c *client.Client) error

	// Disconnect resynchronizes the programmer and releases the client.
	Disconnect() error

	Read(address, count int) ([]byte, error)

	// Write returns the number of bytes committed, which is less than
	// len(data) when an error stops the transfer.
	Write(address int, data []byte) (int, error)

	// Erase fills the chip with 0xFF.
	Erase() error

	State() State
	SetProgressCallback(cb ProgressCallback)
}

// State is a driver's lifecycle state.
type State int

// Driver states.
const (
	StateUnconfigured State = iota
	StateConfigured
	StateReading
	StateWriting
	StateErasing
	StateDisconnected
)

var stateNames = [...]string{
	StateUnconfigured: "unconfigured",
	StateConfigured:   "configured",
	StateReading:      "reading",
	StateWriting:      "writing",
	StateErasing:      "erasing",
	StateDisconnected: "disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Option configures a driver.
type Option func(*options)

type options struct {
	sleep      func(time.Duration)
	writeCycle time.Duration
}

func defaultOptions() options {
	return options{sleep: time.Sleep, writeCycle: DefaultWriteCycle}
}

// WithSleep replaces the function used to wait out write cycles.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// WithWriteCycle sets the delay after every written chunk.
func WithWriteCycle(d time.Duration) Option {
	return func(o *options) {
		o.writeCycle = d
	}
}

// base holds what both chip families share: the descriptor, the session,
// the state machine and progress reporting.
type base struct {
	desc     Descriptor
	opts     options
	client   *client.Client
	state    State
	progress ProgressCallback
}

func newBase(desc Descriptor, opts []Option) base {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return base{desc: desc, opts: o}
}

// Descriptor returns the chip description.
func (b *base) Descriptor() Descriptor {
	return b.desc
}

// State returns the current lifecycle state.
func (b *base) State() State {
	return b.state
}

// SetProgressCallback sets the progress callback function.
func (b *base) SetProgressCallback(cb ProgressCallback) {
	b.progress = cb
}

func (b *base) reportProgress(current, total int) {
	if b.progress != nil {
		b.progress(current, total)
	}
}

// ready reports whether a transfer may start.
func (b *base) ready() error {
	switch b.state {
	case StateConfigured:
		return nil
	case StateUnconfigured:
		return ErrNotConnected
	case StateDisconnected:
		return ErrDisconnected
	default:
		return fmt.Errorf("%s: %s: %w", b.desc.Name, b.state, ErrBusy)
	}
}

// beginConnect validates a Connect call.
func (b *base) beginConnect(c *client.Client) error {
	if c == nil {
		return fmt.Errorf("%s: nil client: %w", b.desc.Name, protocol.ErrInvalidArgument)
	}
	if err := b.desc.Validate(); err != nil {
		return err
	}
	switch b.state {
	case StateUnconfigured, StateConfigured:
		return nil
	case StateDisconnected:
		return ErrDisconnected
	default:
		return fmt.Errorf("%s: %s: %w", b.desc.Name, b.state, ErrBusy)
	}
}

// connectFailed drops a chip whose bus configuration was only partly
// applied back to StateUnconfigured and returns err.
func (b *base) connectFailed(err error) error {
	b.client = nil
	b.state = StateUnconfigured
	return err
}

// begin checks the state and range and enters a transfer state.
func (b *base) begin(s State, address, count int) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := b.checkRange(address, count); err != nil {
		return err
	}
	b.state = s
	return nil
}

func (b *base) end() {
	b.state = StateConfigured
}

func (b *base) checkRange(address, count int) error {
	if address < 0 || count < 0 || address > b.desc.Size || count > b.desc.Size-address {
		return fmt.Errorf("%s: range [%d, %d) outside [0, %d): %w",
			b.desc.Name, address, address+count, b.desc.Size, protocol.ErrInvalidArgument)
	}
	return nil
}

// Disconnect resynchronizes the programmer and releases the client. The
// chip is disconnected even when the final sync fails.
func (b *base) Disconnect() error {
	switch b.state {
	case StateUnconfigured, StateDisconnected:
		return nil
	}

	c := b.client
	b.client = nil
	b.state = StateDisconnected
	if err := c.Sync(); err != nil {
		return fmt.Errorf("%s: failed to sync on disconnect: %w", b.desc.Name, err)
	}
	return nil
}

// writeCycle waits for the chip to commit a chunk.
func (b *base) writeCycle() {
	if b.opts.writeCycle > 0 {
		b.opts.sleep(b.opts.writeCycle)
	}
}

// erased returns a whole-chip image of 0xFF.
func (b *base) erased() []byte {
	data := make([]byte, b.desc.Size)
	for i := range data {
		data[i] = 0xFF
	}
	return data
}

// chunkLimit rejects sessions too small to move a single byte.
func chunkLimit(op protocol.Opcode, limit, requested int) (int, error) {
	if limit < 1 {
		return 0, &protocol.CapacityError{Opcode: op, Requested: requested, Limit: max(limit, 0)}
	}
	return limit, nil
}

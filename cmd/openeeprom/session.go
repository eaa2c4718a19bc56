package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/openeeprom/openeeprom/internal/chip"
	"github.com/openeeprom/openeeprom/internal/client"
	"github.com/openeeprom/openeeprom/internal/protocol"
	"github.com/openeeprom/openeeprom/internal/serial"
	"github.com/openeeprom/openeeprom/internal/transport"
)

// session is an open connection to a programmer.
type session struct {
	target transport.Target
	io     transport.Transport
	client *client.Client
}

func (s *session) Close() error {
	return s.io.Close()
}

// connectionTarget resolves --connect, --serial and --tcp into a single
// target. Exactly one of them must be given.
func connectionTarget() (transport.Target, error) {
	given := 0
	for _, f := range []string{connectFlag, serialFlag, tcpFlag} {
		if f != "" {
			given++
		}
	}
	switch {
	case given > 1:
		return transport.Target{}, errors.New("--connect, --serial and --tcp are mutually exclusive")
	case connectFlag != "":
		return transport.ParseTarget(connectFlag, protocol.DefaultBaudRate)
	case serialFlag != "":
		return transport.ParseTarget(string(transport.KindSerial)+":"+serialFlag, protocol.DefaultBaudRate)
	case tcpFlag != "":
		return transport.ParseTarget(string(transport.KindTCP)+":"+tcpFlag, protocol.DefaultBaudRate)
	default:
		return transport.Target{}, errors.New("no programmer given: use --connect, --serial or --tcp")
	}
}

func openTransport(t transport.Target) (transport.Transport, error) {
	switch t.Kind {
	case transport.KindSerial:
		port, err := serial.Open(t.Address, t.Baud)
		if err != nil {
			return nil, err
		}
		return port, nil
	case transport.KindTCP:
		conn, err := transport.DialTCP(t.Address, timeoutFlag)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", t.Kind)
	}
}

func openSession() (*session, error) {
	target, err := connectionTarget()
	if err != nil {
		return nil, err
	}

	io, err := openTransport(target)
	if err != nil {
		return nil, err
	}

	c, err := client.New(io, client.WithTimeout(timeoutFlag))
	if err != nil {
		_ = io.Close()
		return nil, fmt.Errorf("failed to connect to programmer on %s: %w", target, err)
	}

	return &session{target: target, io: io, client: c}, nil
}

// openChip opens a session and configures the programmer for --chip.
func openChip() (*session, chip.Chip, error) {
	ch, err := chip.New(chipFlag)
	if err != nil {
		return nil, nil, err
	}

	s, err := openSession()
	if err != nil {
		return nil, nil, err
	}

	buses, err := s.client.SupportedBusTypes()
	if err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("failed to read bus types: %w", err)
	}
	desc := ch.Descriptor()
	if !buses.Has(desc.Bus.Mask()) {
		_ = s.Close()
		return nil, nil, fmt.Errorf("programmer does not support the %s bus needed by %s", desc.Bus, desc.Name)
	}

	if err := ch.Connect(s.client); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return s, ch, nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// mismatch is one differing byte found by verify.
type mismatch struct {
	Address int
	Want    byte
	Got     byte
}

func compare(offset int, want, got []byte) []mismatch {
	var diffs []mismatch
	for i, w := range want {
		if i >= len(got) {
			break
		}
		if got[i] != w {
			diffs = append(diffs, mismatch{Address: offset + i, Want: w, Got: got[i]})
		}
	}
	return diffs
}

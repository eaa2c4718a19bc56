package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind selects a transport implementation.
type Kind string

// Transport kinds
const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
)

// Target describes where the programmer is reachable.
type Target struct {
	Kind    Kind
	Address string // serial device path or host:port
	Baud    int    // serial only
}

var errBadTarget = errors.New("invalid connection string")

func (t Target) String() string {
	if t.Kind == KindSerial {
		return fmt.Sprintf("serial:%s:%d", t.Address, t.Baud)
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.Address)
}

// ParseTarget parses "serial:<port>[:<baud>]" or "tcp:<host>:<port>".
func ParseTarget(s string, defaultBaud int) (Target, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Target{}, fmt.Errorf("%w %q: missing transport kind", errBadTarget, s)
	}
	switch Kind(kind) {
	case KindSerial:
		return ParseSerial(rest, defaultBaud)
	case KindTCP:
		return ParseTCP(rest)
	default:
		return Target{}, fmt.Errorf("%w %q: unknown transport %q", errBadTarget, s, kind)
	}
}

// ParseSerial parses "<port>[:<baud>]". The baud rate is taken after the
// last colon so Windows names like COM3 and paths like /dev/ttyACM0 work.
func ParseSerial(s string, defaultBaud int) (Target, error) {
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty serial port", errBadTarget)
	}
	port, baud := s, defaultBaud
	if i := strings.LastIndex(s, ":"); i >= 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n <= 0 {
			return Target{}, fmt.Errorf("%w %q: bad baud rate", errBadTarget, s)
		}
		port, baud = s[:i], n
	}
	if port == "" {
		return Target{}, fmt.Errorf("%w %q: empty serial port", errBadTarget, s)
	}
	return Target{Kind: KindSerial, Address: port, Baud: baud}, nil
}

// ParseTCP parses "<host>:<port>".
func ParseTCP(s string) (Target, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Target{}, fmt.Errorf("%w %q: want host:port", errBadTarget, s)
	}
	if n, err := strconv.Atoi(s[i+1:]); err != nil || n <= 0 || n > 65535 {
		return Target{}, fmt.Errorf("%w %q: bad port", errBadTarget, s)
	}
	return Target{Kind: KindTCP, Address: s}, nil
}

// Package debug provides wire-level trace logging for the programmer
// session. Output goes to stderr and is off unless OPENEEPROM_DEBUG is set
// or SetEnabled(true) is called.
package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// maxDump caps how many bytes Bytes renders before eliding the rest.
const maxDump = 32

var (
	mu      sync.Mutex
	enabled = os.Getenv("OPENEEPROM_DEBUG") != ""
	out     io.Writer = os.Stderr
)

// SetEnabled turns debug output on or off.
func SetEnabled(on bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on
}

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetOutput redirects debug output, returning the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// Debugf prints a timestamped debug line when debugging is enabled.
func Debugf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(out, "%s DEBUG: %s\n", timestamp, fmt.Sprintf(format, args...))
}

// Bytes renders data as space-separated hex, eliding long buffers.
func Bytes(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i == maxDump {
			fmt.Fprintf(&b, " ... (%d bytes)", len(data))
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

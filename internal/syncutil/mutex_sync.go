//go:build !deadlock

// Package syncutil provides the mutex that guards a programmer session.
//
// A client may be shared between goroutines, but the wire carries one
// command and its response at a time. Each exchange holds the lock from
// the first byte sent to the last result byte read, so requests from
// different callers never interleave. The simulator takes the same lock
// around its command buffer.
//
// Build with -tags=deadlock to swap in github.com/sasha-s/go-deadlock,
// which reports lock-order faults and locks held longer than its timeout.
package syncutil

import "sync"

// Mutex wraps sync.Mutex.
type Mutex struct {
	sync.Mutex
}

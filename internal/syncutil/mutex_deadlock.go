//go:build deadlock

// Package syncutil provides the locks used by the AT client and its helpers.
// This file is compiled when building with -tags=deadlock so lock-order bugs
// between the command lock and the URC queue are reported at runtime.
package syncutil

import (
	"sync"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}

var (
	_ sync.Locker = (*Mutex)(nil)
	_ sync.Locker = (*RWMutex)(nil)
)

// Package testutil provides deterministic time sources for tests.
package testutil

import (
	"sync"
	"time"
)

// FrozenTime is a wall-clock source pinned to a fixed instant, for
// deterministic evaluation timestamps in tests.
//
// All methods are safe for concurrent use.
type FrozenTime struct {
	mu sync.Mutex
	t  time.Time
}

// NewFrozenTime creates a clock frozen at the given instant.
func NewFrozenTime(t time.Time) *FrozenTime {
	return &FrozenTime{t: t}
}

// Now returns the frozen instant. Pass the method value as a now-func:
//
//	daemon.WithNow(frozen.Now)
func (f *FrozenTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the frozen instant forward by d.
func (f *FrozenTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// Set repositions the frozen instant.
func (f *FrozenTime) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

package daemon

import "sync/atomic"

// Clock is the monotonic logical clock every stored event is stamped
// with. Seqs are strictly increasing and never derived from wall time,
// so replaying a store produces identical ordering.
//
// Clock is safe for concurrent use, though the single-writer tick
// design means only one goroutine typically calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a specific seq. Used on
// restart to continue from the store's latest seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next seq and advances the clock. Each call returns a
// unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the clock's position without advancing it.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

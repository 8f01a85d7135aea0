package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the monotonic logical clock that orders the transaction log.
//
// Safe for concurrent use, though the single-writer lock means only one
// goroutine calls Next at a time. The engine advances it only after a
// transaction is logged.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// TimeSource supplies wall-clock readings for transaction timestamps.
type TimeSource func() time.Time

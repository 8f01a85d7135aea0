// Package testutil provides deterministic clocks, addresses and signer keys
// for tests and scenario runs.
package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first reading of a DeterministicClock created with
// start 0: 2023-11-14T22:13:20Z.
const DefaultEpoch int64 = 1700000000

// DeterministicClock is a wall clock for tests. Every Now call advances
// one second, so the same sequence of transactions always receives the
// same timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	ticks int64
}

// NewDeterministicClock creates a clock whose first reading is start
// (unix seconds). A start of 0 means DefaultEpoch.
func NewDeterministicClock(start int64) *DeterministicClock {
	if start == 0 {
		start = DefaultEpoch
	}
	return &DeterministicClock{start: start}
}

// Now returns the next reading and advances the clock by one second.
// Its method value satisfies engine.TimeSource.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Unix(c.start+c.ticks, 0).UTC()
	c.ticks++
	return t
}

// Current returns the reading the next Now call will return, without
// advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start + c.ticks
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}

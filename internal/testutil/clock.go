package testutil

import (
	"sync"
	"time"
)

// Epoch is the first time a DeterministicClock returns.
var Epoch = time.Date(2015, time.January, 2, 3, 4, 5, 0, time.UTC)

// DeterministicClock provides a thread-safe wall clock for tests that
// advances by a fixed step on every read.
//
// Pass Now to host.WithClock so Get-Date folds to a known value.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock starting at Epoch that advances one
// second per call. A step of 0 freezes it.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{next: Epoch, step: time.Second}
}

// WithStep sets the advance per call and returns c.
func (c *DeterministicClock) WithStep(d time.Duration) *DeterministicClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
	return c
}

// Now returns the current time and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}

package ledger

import (
	"errors"
	"sync"
	"time"
)

// ErrClockBackwards is returned when a manual clock is moved into the past
var ErrClockBackwards = errors.New("ledger clock cannot move backwards")

// Clock reports the ledger timestamp in seconds. Successive readings never decrease.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current unix time
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock creates a manual clock starting at start
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, truncated to whole seconds
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d / time.Second)
}

// Set moves the clock to t
func (c *ManualClock) Set(t uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.now {
		return ErrClockBackwards
	}
	c.now = t
	return nil
}

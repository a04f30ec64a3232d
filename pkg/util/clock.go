package util

import (
	"sync"
	"time"
)

// Clock abstracts time for trade timestamps, snapshot history keys and the
// snapshot timer
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// ManualClock reports a controlled time. Each Now call advances it by step,
// so a zero step freezes it. After still waits in real time.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewManualClock(start time.Time, step time.Duration) *ManualClock {
	return &ManualClock{now: start, step: step}
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

package types

import (
	"sync/atomic"
	"time"
)

// Timestamp is an instant in nanoseconds since the Unix epoch.
type Timestamp int64

// Time converts the timestamp to a time.Time in UTC
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// Clock hands out strictly increasing timestamps. Two calls never return the
// same value even when the wall clock stalls or steps backwards.
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewClock creates a clock backed by the wall clock
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockWithSource creates a clock backed by the given time source
func NewClockWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the next timestamp
func (c *Clock) Now() Timestamp {
	for {
		prev := c.last.Load()
		next := c.now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return Timestamp(next)
		}
	}
}

// Observe advances the clock past a timestamp loaded from storage so that
// later writes sort after it.
func (c *Clock) Observe(t Timestamp) {
	for {
		prev := c.last.Load()
		if int64(t) <= prev || c.last.CompareAndSwap(prev, int64(t)) {
			return
		}
	}
}

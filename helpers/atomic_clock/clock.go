// Package atomic_clock is lock free timestamp holder.
// Status snapshots read these from other goroutines while the poll loop writes.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

// Clock is unix nano timestamp, zero value means unset.
type Clock struct{ v int64 }

func (c *Clock) IsZero() bool { return atomic.LoadInt64(&c.v) == 0 }

func (c *Clock) SetTime(t time.Time) { atomic.StoreInt64(&c.v, t.UnixNano()) }

// SetIfZero keeps first recorded time.
func (c *Clock) SetIfZero(t time.Time) bool {
	return atomic.CompareAndSwapInt64(&c.v, 0, t.UnixNano())
}

// Time returns zero time.Time when clock is not set.
func (c *Clock) Time() time.Time {
	v := atomic.LoadInt64(&c.v)
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

// Age is time passed since stored value, 0 when unset.
func (c *Clock) Age(now time.Time) time.Duration {
	v := atomic.LoadInt64(&c.v)
	if v == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, v))
}

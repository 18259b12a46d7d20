package helpers

import (
	"sync/atomic"
	"time"
)

// Backoff is limited exponential delay between reconnect attempts.
// First delay is always 0, Failure() multiplies next delay by K
// starting from Min, Reset() clears delay.
//
//	if d := b.DelayBefore(); d > 0 {
//	  return errors.Errorf("reconnect in %v", d)
//	}
//	err := connect()
//	b.Update(err == nil)
type Backoff struct {
	next int64 // atomic align
	last int64 // unix nano, atomic

	Min   time.Duration
	Max   time.Duration
	K     float32
	Res   time.Duration // delay resolution for nice logs, default=1ms
	Clock Clock         // nil means SystemClock
}

func (b *Backoff) DelayAfter(success bool) time.Duration {
	atomic.CompareAndSwapInt64(&b.next, 0, int64(b.Min))
	b.Update(success)
	return b.DelayBefore()
}

func (b *Backoff) DelayBefore() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		return 0
	}
	delay := b.limit(next)
	since := b.now().Sub(time.Unix(0, atomic.LoadInt64(&b.last)))
	if since >= delay {
		return 0
	}
	return b.round(delay - since)
}

func (b *Backoff) Failure() {
	next := time.Duration(atomic.LoadInt64(&b.next))
	next = b.limit(time.Duration(float32(next) * b.K))
	atomic.StoreInt64(&b.last, b.now().UnixNano())
	atomic.StoreInt64(&b.next, int64(next))
}

func (b *Backoff) Reset() {
	atomic.StoreInt64(&b.last, b.now().UnixNano())
	atomic.StoreInt64(&b.next, 0)
}

func (b *Backoff) Update(success bool) {
	if success {
		b.Reset()
	} else {
		b.Failure()
	}
}

func (b *Backoff) now() time.Time {
	if b.Clock == nil {
		return SystemClock.Now()
	}
	return b.Clock.Now()
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}

package uploader

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/juju/errors"
)

var DefaultDelays = []time.Duration{5 * time.Second, 60 * time.Second, 300 * time.Second}

// Backoff is retry schedule with fixed stage delays.
// Stage -1 means no failure since last success.
type Backoff struct {
	mu     sync.Mutex
	delays []time.Duration
	stage  int
	next   time.Time
}

func NewBackoff(delays []time.Duration) *Backoff {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	return &Backoff{delays: delays, stage: -1}
}

func (self *Backoff) Ready(now time.Time) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.stage < 0 || !now.Before(self.next)
}

// Failure advances stage saturating at last delay, returns the delay.
func (self *Backoff) Failure(now time.Time) time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.stage < len(self.delays)-1 {
		self.stage++
	}
	d := self.delays[self.stage]
	self.next = now.Add(d)
	return d
}

func (self *Backoff) Success() {
	self.mu.Lock()
	self.stage = -1
	self.next = time.Time{}
	self.mu.Unlock()
}

func (self *Backoff) Stage() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.stage
}

func (self *Backoff) NextRetryAt() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.next
}

// MarshalBinary layout: stage int8, next unix nanoseconds int64.
func (self *Backoff) MarshalBinary() ([]byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	b := make([]byte, 9)
	b[0] = byte(int8(self.stage))
	var ns int64
	if !self.next.IsZero() {
		ns = self.next.UnixNano()
	}
	binary.BigEndian.PutUint64(b[1:], uint64(ns))
	return b, nil
}

// UnmarshalBinary clamps stored stage to current delay table.
func (self *Backoff) UnmarshalBinary(b []byte) error {
	if len(b) != 9 {
		return errors.NotValidf("backoff state len=%d", len(b))
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	stage := int(int8(b[0]))
	if stage < -1 {
		stage = -1
	}
	if stage > len(self.delays)-1 {
		stage = len(self.delays) - 1
	}
	self.stage = stage
	self.next = time.Time{}
	if ns := int64(binary.BigEndian.Uint64(b[1:])); ns != 0 && stage >= 0 {
		self.next = time.Unix(0, ns).UTC()
	}
	return nil
}

package helpers

import (
	"sync"
	"time"
)

// Clock is time source for deadline loops. Tests substitute FakeClock
// so timeouts are exact and instant.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

var SystemClock Clock = systemClock{}

// FakeClock only moves on Sleep or Advance.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock { return &FakeClock{now: start} }

func (self *FakeClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.now
}

func (self *FakeClock) Sleep(d time.Duration) { self.Advance(d) }

func (self *FakeClock) Advance(d time.Duration) {
	self.mu.Lock()
	self.now = self.now.Add(d)
	self.mu.Unlock()
}

func (self *FakeClock) Set(t time.Time) {
	self.mu.Lock()
	self.now = t
	self.mu.Unlock()
}

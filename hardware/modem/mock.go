package modem

// Public API to script modem conversations in tests.
import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogotrans/geotrack/helpers"
)

// MockStep expects exact bytes written, then schedules Reply after Delay
// and optional URC after URCDelay, both relative to the write.
type MockStep struct {
	Expect   string
	Reply    string
	Delay    time.Duration
	URC      string
	URCDelay time.Duration
}

// Cmd is step for command line with immediate reply.
func Cmd(command, reply string) MockStep {
	return MockStep{Expect: command + "\r\n", Reply: reply}
}

type mockChunk struct {
	at time.Time
	b  []byte
}

type MockPort struct {
	t      testing.TB
	clock  helpers.Clock
	mu     sync.Mutex
	steps  []MockStep
	rx     []mockChunk
	wbuf   []byte
	closed bool
	Wrote  bytes.Buffer
}

func NewMockPort(t testing.TB, clock helpers.Clock, steps ...MockStep) *MockPort {
	return &MockPort{t: t, clock: clock, steps: steps}
}

// NewTestModem returns modem on scripted port and fake clock.
func NewTestModem(t testing.TB, steps ...MockStep) (*Modem, *MockPort, *helpers.FakeClock) {
	clock := helpers.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	port := NewMockPort(t, clock, steps...)
	m := New(port, nil)
	m.SetClock(clock)
	return m, port, clock
}

func (self *MockPort) Expect(steps ...MockStep) {
	self.mu.Lock()
	self.steps = append(self.steps, steps...)
	self.mu.Unlock()
}

// Schedule makes bytes readable after delay from now.
func (self *MockPort) Schedule(s string, delay time.Duration) {
	self.mu.Lock()
	self.schedule(s, delay)
	self.mu.Unlock()
}

func (self *MockPort) schedule(s string, delay time.Duration) {
	if s == "" {
		return
	}
	c := mockChunk{at: self.clock.Now().Add(delay), b: []byte(s)}
	i := len(self.rx)
	for i > 0 && self.rx[i-1].at.After(c.at) {
		i--
	}
	self.rx = append(self.rx, mockChunk{})
	copy(self.rx[i+1:], self.rx[i:])
	self.rx[i] = c
}

func (self *MockPort) Read(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.rx) == 0 || self.rx[0].at.After(self.clock.Now()) {
		return 0, nil
	}
	n := copy(p, self.rx[0].b)
	if n == len(self.rx[0].b) {
		self.rx = self.rx[1:]
	} else {
		self.rx[0].b = self.rx[0].b[n:]
	}
	return n, nil
}

func (self *MockPort) Write(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Wrote.Write(p)
	self.wbuf = append(self.wbuf, p...)
	for len(self.wbuf) != 0 {
		if len(self.steps) == 0 {
			self.t.Errorf("modem mock unexpected write=%q", self.wbuf)
			self.wbuf = nil
			break
		}
		step := self.steps[0]
		if bytes.HasPrefix(self.wbuf, []byte(step.Expect)) {
			self.wbuf = self.wbuf[len(step.Expect):]
			self.steps = self.steps[1:]
			self.schedule(step.Reply, step.Delay)
			self.schedule(step.URC, step.URCDelay)
			continue
		}
		if len(self.wbuf) >= len(step.Expect) || !strings.HasPrefix(step.Expect, string(self.wbuf)) {
			self.t.Errorf("modem mock expected=%q actual=%q", step.Expect, self.wbuf)
			self.wbuf = nil
			self.steps = self.steps[1:]
		}
		break
	}
	return len(p), nil
}

func (self *MockPort) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}

// ExpectationsWereMet reports steps never written.
func (self *MockPort) ExpectationsWereMet() {
	self.mu.Lock()
	defer self.mu.Unlock()
	for _, s := range self.steps {
		self.t.Errorf("modem mock step not consumed expect=%q", s.Expect)
	}
}

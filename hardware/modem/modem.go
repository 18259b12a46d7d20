// Package modem talks Quectel AT command protocol over a byte stream.
//
// Modem owns the receive buffer. Bytes read past a match stay pending
// for the next exchange, so an unsolicited result code that arrives
// together with a command response is not lost.
package modem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	"github.com/juju/errors"
)

const ContextKey = "run/modem"

const (
	DefaultCommandTimeout = 2 * time.Second
	DefaultPoll           = 10 * time.Millisecond
	CtrlZ                 = 0x1a
)

// Porter is raw serial channel. Read may return 0,nil or 0,io.EOF when
// nothing arrived within port read timeout.
type Porter interface {
	io.Reader
	io.Writer
	io.Closer
}

// Matcher decides if accumulated response is complete.
// Called after every received byte.
type Matcher func(acc []byte) bool

func Suffix(expect string) Matcher {
	e := []byte(expect)
	return func(acc []byte) bool { return bytes.HasSuffix(acc, e) }
}

// FinalResult matches when last complete line is OK or error result code.
func FinalResult(acc []byte) bool {
	if len(acc) == 0 || acc[len(acc)-1] != '\n' {
		return false
	}
	k := ClassifyLine(lastLine(acc))
	return k == KindOK || k == KindError
}

// ErrorResult reports response ending with ERROR, +CME ERROR or +CMS ERROR.
func ErrorResult(acc []byte) bool {
	return FinalResult(acc) && ClassifyLine(lastLine(acc)) == KindError
}

type Modem struct {
	Log     *log2.Log
	lk      sync.Mutex
	port    Porter
	clock   helpers.Clock
	sink    io.Writer
	poll    time.Duration
	pending []byte
	rbuf    []byte
}

func ContextValueModem(ctx context.Context) *Modem {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Errorf("context['%v'] is nil", ContextKey))
	}
	if m, ok := v.(*Modem); ok {
		return m
	}
	panic(fmt.Errorf("context['%v'] expected type *Modem", ContextKey))
}

func New(port Porter, log *log2.Log) *Modem {
	return &Modem{
		Log:   log,
		port:  port,
		clock: helpers.SystemClock,
		poll:  DefaultPoll,
		rbuf:  make([]byte, 256),
	}
}

func (self *Modem) SetClock(c helpers.Clock) { self.clock = c }
func (self *Modem) Clock() helpers.Clock     { return self.clock }
func (self *Modem) SetPoll(d time.Duration)  { self.poll = d }

// SetSink receives copy of every byte read from port.
func (self *Modem) SetSink(w io.Writer) { self.sink = w }

func (self *Modem) Close() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	return self.port.Close()
}

// Send writes command line and waits until response ends with expect.
// Returns everything captured, also on timeout. No retry.
func (self *Modem) Send(command, expect string, timeout time.Duration) (string, bool) {
	b, ok, err := self.Transact(command, timeout, Suffix(expect))
	if err != nil {
		self.Log.Errorf("modem command=%q err=%v", command, err)
	}
	return b, ok
}

// WaitFor is Send without writing command, used for URCs.
func (self *Modem) WaitFor(expect string, timeout time.Duration) (string, bool) {
	self.lk.Lock()
	defer self.lk.Unlock()
	b, ok, err := self.wait(timeout, Suffix(expect))
	if err != nil {
		self.Log.Errorf("modem wait expect=%q err=%v", expect, err)
	}
	return string(b), ok
}

func (self *Modem) WaitMatch(timeout time.Duration, m Matcher) (string, bool, error) {
	self.lk.Lock()
	defer self.lk.Unlock()
	b, ok, err := self.wait(timeout, m)
	return string(b), ok, err
}

// Transact writes command line and waits for m.
func (self *Modem) Transact(command string, timeout time.Duration, m Matcher) (string, bool, error) {
	self.lk.Lock()
	defer self.lk.Unlock()
	if err := self.writeLine(command); err != nil {
		return "", false, errors.Annotatef(err, "modem write command=%q", command)
	}
	b, ok, err := self.wait(timeout, m)
	if err != nil {
		err = errors.Annotatef(err, "modem read command=%q", command)
	}
	return string(b), ok, err
}

// Command waits for final result code.
// OK -> nil, ERROR -> ProtocolError, nothing -> timeout error.
func (self *Modem) Command(command string, timeout time.Duration) (string, error) {
	s, ok, err := self.Transact(command, timeout, FinalResult)
	if err != nil {
		return s, err
	}
	if !ok {
		return s, errors.Timeoutf("modem command=%q response=%q", command, s)
	}
	if ErrorResult([]byte(s)) {
		return s, ProtocolError{Command: command, Response: s}
	}
	return s, nil
}

// WriteRaw sends bytes as is, without line terminator.
func (self *Modem) WriteRaw(b []byte) error {
	self.lk.Lock()
	defer self.lk.Unlock()
	self.Log.Debugf("modem tx raw len=%d", len(b))
	return errors.Trace(helpers.WriteAll(self.port, b))
}

// Sync repeats AT until modem answers OK, then disables echo.
func (self *Modem) Sync(timeout time.Duration) error {
	deadline := self.clock.Now().Add(timeout)
	for {
		if _, ok := self.Send("AT", "OK", 500*time.Millisecond); ok {
			if _, err := self.Command("ATE0", DefaultCommandTimeout); err != nil {
				self.Log.Errorf("modem sync ATE0 err=%v", err)
			}
			return nil
		}
		if !self.clock.Now().Before(deadline) {
			return errors.Timeoutf("modem sync within %v", timeout)
		}
		self.clock.Sleep(200 * time.Millisecond)
	}
}

// Discard drops pending bytes, returns how many.
func (self *Modem) Discard() int {
	self.lk.Lock()
	defer self.lk.Unlock()
	n := len(self.pending)
	self.pending = self.pending[:0]
	return n
}

func (self *Modem) writeLine(command string) error {
	self.Log.Debugf("modem tx %q", command)
	line := make([]byte, 0, len(command)+2)
	line = append(line, command...)
	line = append(line, '\r', '\n')
	return helpers.WriteAll(self.port, line)
}

func (self *Modem) wait(timeout time.Duration, m Matcher) ([]byte, bool, error) {
	deadline := self.clock.Now().Add(timeout)
	acc := make([]byte, 0, 64)
	for {
		var ok bool
		if acc, ok = self.drain(acc, m); ok {
			return acc, true, nil
		}

		n, err := self.port.Read(self.rbuf)
		if n > 0 {
			if self.sink != nil {
				_, _ = self.sink.Write(self.rbuf[:n])
			}
			self.pending = append(self.pending, self.rbuf[:n]...)
			if acc, ok = self.drain(acc, m); ok {
				return acc, true, nil
			}
			// endless stream without terminator must not outlive deadline
			if !self.clock.Now().Before(deadline) {
				return acc, false, nil
			}
			continue
		}
		if err != nil && err != io.EOF {
			return acc, false, errors.Trace(err)
		}

		now := self.clock.Now()
		if !now.Before(deadline) {
			return acc, false, nil
		}
		d := self.poll
		if left := deadline.Sub(now); left < d {
			d = left
		}
		self.clock.Sleep(d)
	}
}

// drain moves pending bytes to acc one by one until m matches.
func (self *Modem) drain(acc []byte, m Matcher) ([]byte, bool) {
	for len(self.pending) != 0 {
		acc = append(acc, self.pending[0])
		self.pending = self.pending[1:]
		if m(acc) {
			return acc, true
		}
	}
	return acc, false
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\r\n")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(bytes.TrimSpace(b))
}

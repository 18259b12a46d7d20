package log2

import (
	"bytes"
	"strconv"
	"sync"
)

const lineWriterMax = 512

type LineWriter struct {
	mu     sync.Mutex
	log    *Log
	level  Level
	prefix string
	buf    []byte
}

// Writer returns io.Writer that emits one log record per completed line.
// Used as byte-level sink for serial traffic, so partial lines are held
// until newline or lineWriterMax bytes.
func (self *Log) Writer(level Level, prefix string) *LineWriter {
	return &LineWriter{log: self, level: level, prefix: prefix}
}

func (self *LineWriter) Write(b []byte) (int, error) {
	if !self.log.Enabled(self.level) {
		return len(b), nil
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.buf = append(self.buf, b...)
	for {
		i := bytes.IndexByte(self.buf, '\n')
		if i < 0 {
			if len(self.buf) >= lineWriterMax {
				self.emit(self.buf)
				self.buf = self.buf[:0]
			}
			return len(b), nil
		}
		self.emit(self.buf[:i])
		self.buf = append(self.buf[:0], self.buf[i+1:]...)
	}
}

// Flush emits pending partial line.
func (self *LineWriter) Flush() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.buf) != 0 {
		self.emit(self.buf)
		self.buf = self.buf[:0]
	}
}

func (self *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	self.log.Logf(self.level, "%s%s", self.prefix, strconv.Quote(string(line)))
}

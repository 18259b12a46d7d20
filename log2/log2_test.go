package log2

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	t.Parallel()

	emit := func(l *Log) {
		l.Errorf("modem sync err=%s", "timeout")
		l.Infof("queue restored count=%d", 3)
		l.Debugf("modem rx %q", "OK")
	}
	cases := []struct {
		level  Level
		expect string
	}{
		{LError, "error: modem sync err=timeout\n"},
		{LInfo, "error: modem sync err=timeout\nqueue restored count=3\n"},
		{LDebug, "error: modem sync err=timeout\nqueue restored count=3\ndebug: modem rx \"OK\"\n"},
		{LAll, "error: modem sync err=timeout\nqueue restored count=3\ndebug: modem rx \"OK\"\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("level=%d", c.level), func(t *testing.T) {
			t.Parallel()
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, c.level)
			l.SetFlags(0)
			emit(l)
			assert.Equal(t, c.expect, buf.String())
		})
	}
}

func TestNilSafe(t *testing.T) {
	t.Parallel()

	var l *Log
	assert.NotPanics(t, func() {
		l.SetLevel(LDebug)
		l.SetFlags(0)
		l.SetPrefix("x ")
		l.SetErrorFunc(func(error) {})
		l.Error(fmt.Errorf("lost"))
		l.Errorf("lost %d", 1)
		l.Infof("lost")
		l.Debug("lost")
		assert.Nil(t, l.Clone(LInfo))
		assert.False(t, l.Enabled(LError))
	})
}

func TestCaller(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(Lshortfile)
	_, file, line, _ := runtime.Caller(0)
	l.Infof("gps fix sat=%d", 8)
	assert.Equal(t, fmt.Sprintf("%s:%d: gps fix sat=8\n", filepath.Base(file), line+1), buf.String())
}

func TestErrorFunc(t *testing.T) {
	t.Parallel()

	var seen []error
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LError)
	l.SetFlags(0)
	l.SetErrorFunc(func(e error) { seen = append(seen, e) })

	exact := fmt.Errorf("upload status=503")
	l.Error(exact)
	l.Errorf("queue persist key=%s", "start")
	l.Error("plain", " text")
	// clone keeps hook, level is independent
	quiet := l.Clone(LError)
	quiet.Infof("not shown")
	quiet.Errorf("from clone")

	if assert.Len(t, seen, 4) {
		assert.Equal(t, exact, seen[0])
		assert.Equal(t, "queue persist key=start", seen[1].Error())
		assert.Equal(t, "plain text", seen[2].Error())
		assert.Equal(t, "from clone", seen[3].Error())
	}
	assert.Equal(t, "error: upload status=503\nerror: queue persist key=start\nerror: plain text\nerror: from clone\n", buf.String())
}

func TestContextValueLogger(t *testing.T) {
	t.Parallel()

	l := NewWriter(bytes.NewBuffer(nil), LInfo)
	ctx := context.WithValue(context.Background(), ContextKey, l)
	assert.Equal(t, l, ContextValueLogger(ctx))
	assert.Panics(t, func() { ContextValueLogger(context.Background()) })
	assert.Panics(t, func() { ContextValueLogger(context.WithValue(context.Background(), ContextKey, "str")) })
}

func TestLineWriter(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LDebug)
	l.SetFlags(0)
	w := l.Writer(LDebug, "rx ")
	_, _ = w.Write([]byte("AT\r"))
	assert.Equal(t, "", buf.String())
	_, _ = w.Write([]byte("\nOK\r\n+QIURC"))
	assert.Equal(t, "rx \"AT\"\nrx \"OK\"\n", buf.String())
	w.Flush()
	assert.Equal(t, "rx \"AT\"\nrx \"OK\"\nrx \"+QIURC\"\n", buf.String())

	quiet := NewWriter(buf, LInfo).Writer(LDebug, "rx ")
	_, _ = quiet.Write([]byte("ignored\n"))
	assert.NotContains(t, buf.String(), "ignored")
}

func TestLineWriterLong(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LDebug)
	l.SetFlags(0)
	w := l.Writer(LDebug, "")
	_, _ = w.Write(bytes.Repeat([]byte{'x'}, lineWriterMax-10))
	assert.Equal(t, 0, buf.Len())
	n, err := w.Write(bytes.Repeat([]byte{'y'}, 20))
	assert.NoError(t, err)
	assert.Equal(t, 20, n)
	// no newline, emitted at size limit
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
	w.Flush()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

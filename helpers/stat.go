package helpers

import (
	"expvar"
	"io"
)

type StatReader struct {
	R io.Reader
	V *expvar.Int
}

func (sr *StatReader) Read(p []byte) (n int, err error) {
	n, err = sr.R.Read(p)
	sr.V.Add(int64(n))
	return
}

type StatWriter struct {
	W io.Writer
	V *expvar.Int
}

func (sw *StatWriter) Write(p []byte) (n int, err error) {
	n, err = sw.W.Write(p)
	sw.V.Add(int64(n))
	return
}

// StatPort counts bytes passing through serial port in both directions.
type StatPort struct {
	io.Closer
	StatReader
	StatWriter
}

var _ io.ReadWriteCloser = &StatPort{}

func NewStatPort(port io.ReadWriteCloser, rx, tx *expvar.Int) *StatPort {
	return &StatPort{
		Closer:     port,
		StatReader: StatReader{R: port, V: rx},
		StatWriter: StatWriter{W: port, V: tx},
	}
}

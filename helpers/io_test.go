package helpers

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type throttleWriter struct {
	w io.Writer
	n int
}

func (tw *throttleWriter) Write(p []byte) (int, error) {
	if len(p) > tw.n {
		p = p[:tw.n]
	}
	return tw.w.Write(p)
}

func TestWriteAll(t *testing.T) {
	t.Parallel()

	content := []byte("AT+QISEND=0,20\r\n12345678901234567890")
	cases := []struct {
		name   string
		chunk  int
		expect error
	}{
		{"whole", 1 << 10, nil},
		{"chunked", 7, nil},
		{"byte", 1, nil},
		{"stuck", 0, io.ErrShortWrite},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			err := WriteAll(&throttleWriter{&buf, c.chunk}, content)
			assert.Equal(t, c.expect, err)
			if c.expect == nil {
				assert.Equal(t, content, buf.Bytes())
			}
		})
	}
}

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	e1, e2 := errors.New("first"), errors.New("second")
	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	assert.Equal(t, e1, FoldErrors([]error{nil, e1}))
	assert.EqualError(t, FoldErrors([]error{e1, nil, e2}), "first\nsecond")
}

package cellular

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/juju/errors"
)

var (
	qirdTag  = []byte("+QIRD:")
	qirdOK   = []byte("\r\nOK")
	crlf     = []byte("\r\n")
	okSuffix = []byte("OK\r\n")
)

// qirdHeader finds "+QIRD: <len>" line.
// Returns reported length and offset of first byte after header line.
func qirdHeader(b []byte) (n int, dataStart int, err error) {
	i := bytes.Index(b, qirdTag)
	if i < 0 {
		return 0, 0, errors.NotFoundf("+QIRD header")
	}
	j := bytes.IndexByte(b[i:], '\n')
	if j < 0 {
		return 0, 0, errors.NotValidf("+QIRD header incomplete")
	}
	field := bytes.TrimSpace(b[i+len(qirdTag) : i+j])
	// "+QIRD: <len>,<ip>,<port>" in some modes
	if k := bytes.IndexByte(field, ','); k >= 0 {
		field = field[:k]
	}
	n, err = strconv.Atoi(string(field))
	if err != nil || n < 0 {
		return 0, 0, errors.NotValidf("+QIRD length=%q", field)
	}
	return n, i + j + 1, nil
}

// qirdComplete waits for header, declared payload bytes and final OK.
func qirdComplete(acc []byte) bool {
	n, start, err := qirdHeader(acc)
	switch {
	case err == nil:
		return len(acc)-start >= n && bytes.HasSuffix(acc[start+n:], okSuffix)
	case errors.IsNotFound(err):
		return modem.FinalResult(acc)
	}
	return false
}

// parseQird extracts payload. Terminal OK is searched from the end,
// payload may contain "\r\nOK" itself. Some firmware put blank line
// between header and payload.
func parseQird(b []byte) (int, []byte, error) {
	n, start, err := qirdHeader(b)
	if err != nil {
		return 0, nil, err
	}
	end := bytes.LastIndex(b, qirdOK)
	if end < start {
		end = len(b)
	}
	body := b[start:end]
	if bytes.HasPrefix(body, crlf) && len(body) >= n+len(crlf) {
		body = body[len(crlf):]
	}
	if len(body) > n {
		body = body[:n]
	}
	if len(body) < n {
		return n, body, errors.NotValidf("+QIRD payload length=%d reported=%d", len(body), n)
	}
	return n, body, nil
}

// readChunks issues at most attempts reads of chunk bytes.
// Stops on reported length 0 or less than chunk.
func readChunks(m *modem.Modem, id, chunk, attempts int, timeout time.Duration) ([]byte, error) {
	var data []byte
	cmd := fmt.Sprintf("AT+QIRD=%d,%d", id, chunk)
	for attempt := 0; attempt < attempts; attempt++ {
		resp, ok, err := m.Transact(cmd, timeout, qirdComplete)
		if err != nil {
			return data, errors.Trace(err)
		}
		if !ok {
			return data, errors.Timeoutf("%s response=%q", cmd, resp)
		}
		if modem.ErrorResult([]byte(resp)) {
			return data, modem.ProtocolError{Command: cmd, Response: resp}
		}
		n, payload, err := parseQird([]byte(resp))
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return data, errors.Annotatef(err, "%s", cmd)
		}
		if n == 0 {
			break
		}
		data = append(data, payload...)
		if n < chunk {
			break
		}
	}
	return data, nil
}

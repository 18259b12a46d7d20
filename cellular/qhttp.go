package cellular

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/juju/errors"
)

// lineAfter matches once a complete line starting with tag was received.
func lineAfter(tag string) modem.Matcher {
	t := []byte(tag)
	return func(acc []byte) bool {
		i := bytes.Index(acc, t)
		return i >= 0 && bytes.IndexByte(acc[i:], '\n') >= 0
	}
}

// doQhttp sends full request (requestheader=1) through AT+QHTTPPOST,
// so methods other than POST reach the server unchanged.
func (self *Client) doQhttp(req Request, u URL) (Response, error) {
	cfg := []string{
		fmt.Sprintf(`AT+QHTTPCFG="contextid",%d`, self.contextId),
		`AT+QHTTPCFG="requestheader",1`,
		`AT+QHTTPCFG="responseheader",1`,
	}
	if u.HTTPS() {
		cfg = append(cfg, `AT+QHTTPCFG="sslctxid",1`)
	}
	for _, cmd := range cfg {
		if _, err := self.m.Command(cmd, modem.DefaultCommandTimeout); err != nil {
			return Response{}, errors.Trace(err)
		}
	}

	tsec := int(self.qhttpTimeout / time.Second)
	cmd := fmt.Sprintf("AT+QHTTPURL=%d,%d", len(req.URL), tsec)
	if resp, ok := self.m.Send(cmd, "CONNECT", modem.DefaultCommandTimeout*5); !ok {
		return Response{}, modem.ProtocolError{Command: cmd, Response: resp}
	}
	if err := self.m.WriteRaw([]byte(req.URL)); err != nil {
		return Response{}, errors.Trace(err)
	}
	if resp, ok := self.m.WaitFor("OK", modem.DefaultCommandTimeout*5); !ok {
		return Response{}, modem.ProtocolError{Command: cmd, Response: resp}
	}

	wire := req.Wire(u)
	cmd = fmt.Sprintf("AT+QHTTPPOST=%d,%d,%d", len(wire), tsec, tsec)
	if resp, ok := self.m.Send(cmd, "CONNECT", self.qhttpTimeout); !ok {
		return Response{}, modem.ProtocolError{Command: cmd, Response: resp}
	}
	if err := self.m.WriteRaw(wire); err != nil {
		return Response{}, errors.Trace(err)
	}
	resp, ok, err := self.m.WaitMatch(self.qhttpTimeout, lineAfter("+QHTTPPOST:"))
	if err != nil {
		return Response{}, errors.Trace(err)
	}
	if !ok {
		return Response{}, errors.Timeoutf("%s response=%q", cmd, resp)
	}
	fs, _ := modem.Fields(resp, "+QHTTPPOST:")
	if len(fs) == 0 || fs[0] != "0" {
		return Response{}, modem.ProtocolError{Command: cmd, Response: resp}
	}
	status := 0
	if len(fs) >= 2 {
		status, _ = strconv.Atoi(fs[1])
	}

	cmd = fmt.Sprintf("AT+QHTTPREAD=%d", tsec)
	body, ok, err := self.m.Transact(cmd, self.qhttpTimeout, lineAfter("+QHTTPREAD:"))
	if err != nil {
		return Response{Status: status}, errors.Trace(err)
	}
	if !ok {
		return Response{Status: status}, errors.Timeoutf("%s response=%q", cmd, body)
	}
	raw := qhttpBody(body)
	if s, err := ParseStatus(raw); err == nil {
		status = s
	}
	return Response{Status: status, Raw: raw}, nil
}

// qhttpBody cuts payload between "CONNECT" line and "\r\nOK" before +QHTTPREAD.
func qhttpBody(s string) []byte {
	i := strings.Index(s, "CONNECT")
	if i < 0 {
		return nil
	}
	s = s[i+len("CONNECT"):]
	s = strings.TrimPrefix(s, "\r\n")
	if j := strings.LastIndex(s, "+QHTTPREAD:"); j >= 0 {
		s = s[:j]
	}
	if j := strings.LastIndex(s, "\r\nOK"); j >= 0 {
		s = s[:j]
	}
	return []byte(s)
}

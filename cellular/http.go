package cellular

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type URL struct {
	Scheme string
	Host   string
	Port   int
	Path   string // with query
}

func (self URL) HTTPS() bool { return self.Scheme == "https" }

// HostHeader omits default ports.
func (self URL) HostHeader() string {
	if self.Port == 80 || self.Port == 443 {
		return self.Host
	}
	return fmt.Sprintf("%s:%d", self.Host, self.Port)
}

func ParseURL(raw string) (URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, errors.NotValidf("url=%q (%v)", raw, err)
	}
	result := URL{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
	if result.Scheme == "" || result.Host == "" {
		return URL{}, errors.NotValidf("url=%q", raw)
	}
	defaultPort := 80
	if result.HTTPS() {
		defaultPort = 443
	}
	result.Port = defaultPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return URL{}, errors.NotValidf("url=%q port", raw)
		}
		result.Port = n
	}
	result.Path = u.EscapedPath()
	if result.Path == "" {
		result.Path = "/"
	}
	if u.RawQuery != "" {
		result.Path += "?" + u.RawQuery
	}
	return result, nil
}

type Request struct {
	Method      string
	URL         string
	ContentType string
	APIKey      string
	Body        []byte
}

type Response struct {
	Status int
	Raw    []byte
}

func (self Response) OK() bool { return self.Status >= 200 && self.Status < 300 }

// Wire renders literal HTTP/1.1 request.
func (self Request) Wire(u URL) []byte {
	var b bytes.Buffer
	method := self.Method
	if method == "" {
		method = "GET"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, u.Path)
	fmt.Fprintf(&b, "Host: %s\r\n", u.HostHeader())
	if self.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", self.ContentType)
	}
	if self.APIKey != "" {
		fmt.Fprintf(&b, "X-API-Key: %s\r\n", self.APIKey)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(self.Body))
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(self.Body)
	return b.Bytes()
}

// ParseStatus reads three characters after first space following "HTTP/".
func ParseStatus(b []byte) (int, error) {
	i := bytes.Index(b, []byte("HTTP/"))
	if i < 0 {
		return 0, errors.NotValidf("http status line")
	}
	sp := bytes.IndexByte(b[i:], ' ')
	if sp < 0 || i+sp+4 > len(b) {
		return 0, errors.NotValidf("http status line=%q", b[i:])
	}
	code := b[i+sp+1 : i+sp+4]
	n, err := strconv.Atoi(string(code))
	if err != nil {
		return 0, errors.NotValidf("http status code=%q", code)
	}
	return n, nil
}

// Do sends request through the modem. Plain http goes over TCP socket,
// with mode=qhttp the modem HTTP stack is used (https allowed).
func (self *Client) Do(req Request) (Response, error) {
	u, err := ParseURL(req.URL)
	if err != nil {
		return Response{}, err
	}
	if u.HTTPS() && self.mode != ModeQhttp {
		return Response{}, errors.NotSupportedf("scheme %s over modem socket", u.Scheme)
	}

	self.lk.Lock()
	defer self.lk.Unlock()
	if err = self.ensureReady(); err != nil {
		return Response{}, errors.Annotate(err, "cellular")
	}
	var resp Response
	if self.mode == ModeQhttp {
		resp, err = self.doQhttp(req, u)
	} else {
		resp, err = self.doSocket(req, u)
	}
	if err != nil {
		return resp, err
	}
	self.Log.Debugf("cellular %s %s status=%d", req.Method, req.URL, resp.Status)
	return resp, nil
}

func (self *Client) doSocket(req Request, u URL) (Response, error) {
	s := self.socket
	if err := s.Open(u.Host, u.Port); err != nil {
		self.ready = false
		return Response{}, errors.Trace(err)
	}
	defer s.Close()

	if err := s.Send(req.Wire(u)); err != nil {
		return Response{}, errors.Trace(err)
	}
	raw, err := s.Receive()
	if err != nil {
		return Response{Raw: raw}, errors.Trace(err)
	}
	status, err := ParseStatus(raw)
	if err != nil {
		return Response{Raw: raw}, errors.Trace(err)
	}
	return Response{Status: status, Raw: raw}, nil
}

package helpers

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"net/http"
	"sync"
)

// MockRequest is what MockHTTP received, body already read.
type MockRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// MockHTTP is RoundTripper replying with canned raw response.
type MockHTTP struct {
	// raw status line and headers, default 200 OK
	Header []byte
	Body   []byte
	Err    error

	mu       sync.Mutex
	requests []MockRequest
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	r := MockRequest{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		r.Body, _ = ioutil.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	m.mu.Lock()
	m.requests = append(m.requests, r)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

package cellular

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	t.Parallel()

	type Case struct {
		input  string
		expect URL
		valid  bool
	}
	cases := []Case{
		{"http://api.example.com/device/geoSensor/7/", URL{"http", "api.example.com", 80, "/device/geoSensor/7/"}, true},
		{"https://manage.gogotrans.com/api", URL{"https", "manage.gogotrans.com", 443, "/api"}, true},
		{"http://10.0.0.1:8080", URL{"http", "10.0.0.1", 8080, "/"}, true},
		{"HTTP://h/p?a=1&b=2", URL{"http", "h", 80, "/p?a=1&b=2"}, true},
		{"h/p", URL{}, false},
		{"http://h:0/", URL{}, false},
		{"http://h:99999/", URL{}, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			u, err := ParseURL(c.input)
			if !c.valid {
				assert.True(t, errors.IsNotValid(err), "err=%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, u)
		})
	}
}

func TestRequestWire(t *testing.T) {
	t.Parallel()

	req := Request{
		Method:      "PATCH",
		URL:         "http://api.example.com:8080/device/geoSensor/42/",
		ContentType: "application/json",
		APIKey:      "secret",
		Body:        []byte(`{"a":1}`),
	}
	u, err := ParseURL(req.URL)
	require.NoError(t, err)
	expect := "PATCH /device/geoSensor/42/ HTTP/1.1\r\n" +
		"Host: api.example.com:8080\r\n" +
		"Content-Type: application/json\r\n" +
		"X-API-Key: secret\r\n" +
		"Content-Length: 7\r\n" +
		"Connection: close\r\n\r\n" +
		`{"a":1}`
	assert.Equal(t, expect, string(req.Wire(u)))

	u.Port = 80
	assert.Contains(t, string(Request{}.Wire(u)), "GET /device/geoSensor/42/ HTTP/1.1\r\nHost: api.example.com\r\n")
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	type Case struct {
		input  string
		expect int
		valid  bool
	}
	cases := []Case{
		{"HTTP/1.1 200 OK\r\n\r\n", 200, true},
		{"garbage\r\nHTTP/1.0 404 Not Found\r\n", 404, true},
		{"HTTP/1.1 2", 0, false},
		{"HTTP/1.1 abc", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			n, err := ParseStatus([]byte(c.input))
			if !c.valid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, n)
		})
	}
}

func TestParseQird(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		input   string
		n       int
		payload string
		valid   bool
	}
	cases := []Case{
		{"blank-line", "\r\n+QIRD: 5\r\n\r\nhello\r\n\r\nOK\r\n", 5, "hello", true},
		{"direct", "\r\n+QIRD: 5\r\nhello\r\nOK\r\n", 5, "hello", true},
		{"payload-with-ok", "\r\n+QIRD: 8\r\n\r\nA\r\nOK\r\nB\r\n\r\nOK\r\n", 8, "A\r\nOK\r\nB", true},
		{"with-peer", "\r\n+QIRD: 2,\"1.2.3.4\",80\r\nhi\r\nOK\r\n", 2, "hi", true},
		{"empty", "\r\n+QIRD: 0\r\n\r\nOK\r\n", 0, "", true},
		{"short", "\r\n+QIRD: 10\r\nabc\r\nOK\r\n", 10, "", false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			n, payload, err := parseQird([]byte(c.input))
			assert.Equal(t, c.n, n)
			if !c.valid {
				assert.True(t, errors.IsNotValid(err), "err=%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.payload, string(payload))
			assert.True(t, qirdComplete([]byte(c.input)))
		})
	}
	_, _, err := parseQird([]byte("\r\nOK\r\n"))
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, qirdComplete([]byte("\r\n+QIRD: 8\r\n\r\nA\r\nOK\r\n")))
}

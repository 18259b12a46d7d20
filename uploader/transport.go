package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"time"

	"github.com/gogotrans/geotrack/cellular"
	"github.com/juju/errors"
)

const (
	SourceWifi     = "wifi"
	SourceCellular = "4g"
)

const DefaultWifiTimeout = 20 * time.Second

// UpstreamRejected is HTTP status outside 2xx.
type UpstreamRejected struct {
	Status int
}

func (self UpstreamRejected) Error() string {
	return fmt.Sprintf("upstream rejected status=%d", self.Status)
}

func IsUpstreamRejected(err error) bool {
	_, ok := errors.Cause(err).(UpstreamRejected)
	return ok
}

// Transport delivers one PATCH request. Name is reported as networkSource.
type Transport interface {
	Name() string
	Available() bool
	Patch(ctx context.Context, url, apiKey string, body []byte) (int, error)
}

// Wifi is local network path through OS network stack.
type Wifi struct {
	Client *http.Client
	// empty means any route
	Interface string
	// tests replace interface probe
	Probe func(name string) bool
}

func NewWifi(iface string, timeout time.Duration, rt http.RoundTripper) *Wifi {
	if timeout == 0 {
		timeout = DefaultWifiTimeout
	}
	return &Wifi{
		Client:    &http.Client{Timeout: timeout, Transport: rt},
		Interface: iface,
		Probe:     InterfaceUp,
	}
}

func (self *Wifi) Name() string { return SourceWifi }

func (self *Wifi) Available() bool {
	if self.Interface == "" {
		return true
	}
	return self.Probe(self.Interface)
}

func (self *Wifi) Patch(ctx context.Context, url, apiKey string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Annotate(err, "wifi request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	req.Close = true
	resp, err := self.Client.Do(req)
	if err != nil {
		return 0, errors.Annotate(err, "wifi")
	}
	_, _ = io.Copy(ioutil.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// InterfaceUp reports network interface is up and has address.
func InterfaceUp(name string) bool {
	iface, err := net.InterfaceByName(name)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := iface.Addrs()
	return err == nil && len(addrs) != 0
}

// Cellular is HTTP through modem.
type Cellular struct {
	C *cellular.Client
}

func (self Cellular) Name() string    { return SourceCellular }
func (self Cellular) Available() bool { return self.C != nil }

func (self Cellular) Patch(ctx context.Context, url, apiKey string, body []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Trace(err)
	}
	resp, err := self.C.Do(cellular.Request{
		Method:      http.MethodPatch,
		URL:         url,
		ContentType: "application/json",
		APIKey:      apiKey,
		Body:        body,
	})
	return resp.Status, err
}

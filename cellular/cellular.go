// Package cellular drives Quectel modem data services: PDP attach,
// TCP socket tunnel, modem HTTP stack and modem MQTT client.
//
// Client serializes all transactions, at most one socket session exists.
package cellular

import (
	"sync"
	"time"

	cellular_config "github.com/gogotrans/geotrack/cellular/config"
	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
)

const (
	ModeSocket = "socket"
	ModeQhttp  = "qhttp"

	DefaultContextId     = 1
	DefaultReadChunk     = 512
	DefaultReadAttempts  = 8
	DefaultSocketTimeout = 20 * time.Second
	DefaultAttachTimeout = 60 * time.Second
	DefaultSimTimeout    = 20 * time.Second
	DefaultRegCheck      = 2 * time.Second
	DefaultReadyRefresh  = 300 * time.Second
	DefaultQhttpTimeout  = 60 * time.Second
)

type Client struct {
	Log    *log2.Log
	lk     sync.Mutex
	m      *modem.Modem
	clock  helpers.Clock
	socket *Socket

	mode          string
	apn           string
	apnUser       string
	apnPassword   string
	contextId     int
	socketTimeout time.Duration
	attachTimeout time.Duration
	simTimeout    time.Duration
	regCheck      time.Duration
	readyRefresh  time.Duration
	qhttpTimeout  time.Duration

	ready   bool
	readyAt time.Time
	msgId   uint16
}

func NewClient(m *modem.Modem, c cellular_config.Config, log *log2.Log) *Client {
	self := &Client{
		Log:           log,
		m:             m,
		clock:         m.Clock(),
		mode:          c.Mode,
		apn:           c.Apn,
		apnUser:       c.ApnUser,
		apnPassword:   c.ApnPassword,
		contextId:     c.ContextId,
		socketTimeout: helpers.IntSecondDefault(c.SocketTimeoutSec, DefaultSocketTimeout),
		attachTimeout: helpers.IntSecondDefault(c.AttachTimeoutSec, DefaultAttachTimeout),
		simTimeout:    helpers.IntSecondDefault(c.SimTimeoutSec, DefaultSimTimeout),
		regCheck:      helpers.IntMillisecondDefault(c.RegCheckMs, DefaultRegCheck),
		readyRefresh:  helpers.IntSecondDefault(c.ReadyRefreshSec, DefaultReadyRefresh),
		qhttpTimeout:  helpers.IntSecondDefault(c.QhttpTimeoutSec, DefaultQhttpTimeout),
	}
	if self.mode == "" {
		self.mode = ModeSocket
	}
	if self.contextId == 0 {
		self.contextId = DefaultContextId
	}
	chunk, attempts := c.ReadChunk, c.ReadAttempts
	if chunk == 0 {
		chunk = DefaultReadChunk
	}
	if attempts == 0 {
		attempts = DefaultReadAttempts
	}
	self.socket = NewSocket(m, self.contextId, c.SocketId, chunk, attempts, self.socketTimeout, log)
	return self
}

func (self *Client) Mode() string { return self.mode }

// SocketState is for status and tests.
func (self *Client) SocketState() string {
	self.lk.Lock()
	defer self.lk.Unlock()
	return self.socket.State()
}

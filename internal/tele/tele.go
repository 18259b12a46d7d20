package tele

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gogotrans/geotrack/cellular"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_api "github.com/gogotrans/geotrack/tele"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	"github.com/juju/errors"
)

const (
	DefaultClientId       = "geotrack"
	DefaultInterval       = 60 * time.Second
	DefaultNetworkTimeout = 30 * time.Second
)

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - Tick() is called from poll loop, reports at most once per interval
// - status message is retained, lost reports are replaced by next one
// - Error() only counts, errors are sent with next report
type tele struct { //nolint:maligned
	config    tele_config.Config
	log       *log2.Log
	clock     helpers.Clock
	transport Transporter
	cell      *cellular.Client
	snapshot  tele_api.Snapshot

	topicStatus  string
	topicConnect string
	interval     time.Duration
	started      time.Time
	lastReport   time.Time
	stat         tele_api.Stat
}

// New picks transport by config. cell may be nil when modem is not used.
func New(snapshot tele_api.Snapshot, cell *cellular.Client, clock helpers.Clock) tele_api.Teler {
	return &tele{snapshot: snapshot, cell: cell, clock: clock}
}

func NewWithTransporter(trans Transporter, snapshot tele_api.Snapshot, clock helpers.Clock) tele_api.Teler {
	return &tele{transport: trans, snapshot: snapshot, clock: clock}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if self.clock == nil {
		self.clock = helpers.SystemClock
	}
	if !self.config.Enabled {
		self.transport = nil
		return nil
	}
	if self.config.ClientId == "" {
		self.config.ClientId = DefaultClientId
	}
	prefix := self.config.TopicPrefix
	if prefix == "" {
		prefix = self.config.ClientId
	}
	self.topicStatus = prefix + "/status"
	self.topicConnect = prefix + "/connect"
	self.interval = helpers.IntSecondDefault(self.config.IntervalSec, DefaultInterval)
	self.started = self.clock.Now()

	// test code sets .transport
	if self.transport == nil { // production path
		var err error
		if self.transport, err = self.pickTransport(); err != nil {
			return errors.Annotate(err, "tele transport")
		}
	}
	if err := self.transport.Init(ctx, log, self.config, self.topicConnect); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	return nil
}

func (self *tele) pickTransport() (Transporter, error) {
	switch self.config.Transport {
	case tele_config.TransportMqtt:
		return &transportMqtt{}, nil
	case tele_config.TransportModem:
		return &transportModem{c: self.cell, clock: self.clock}, nil
	case "", tele_config.TransportAuto:
		if self.cell == nil {
			return &transportMqtt{}, nil
		}
		return transportChain{&transportMqtt{}, &transportModem{c: self.cell, clock: self.clock}}, nil
	default:
		return nil, errors.NotValidf("tele transport=%s", self.config.Transport)
	}
}

func (self *tele) Close() {
	if self.transport != nil {
		self.transport.Close()
	}
}

func (self *tele) Error(e error) {
	if e == nil {
		return
	}
	self.stat.Lock()
	self.stat.Errors++
	self.stat.LastError = e.Error()
	self.stat.Unlock()
}

func (self *tele) Tick(ctx context.Context) {
	if self.transport == nil {
		return
	}
	now := self.clock.Now()
	if !self.lastReport.IsZero() && now.Sub(self.lastReport) < self.interval {
		return
	}
	self.lastReport = now
	if err := self.Report(ctx); err != nil {
		self.log.Infof("tele report err=%v", err)
	}
}

func (self *tele) Report(ctx context.Context) error {
	if self.transport == nil {
		return nil
	}
	now := self.clock.Now()
	s := tele_api.Status{
		ClientId:  self.config.ClientId,
		Time:      now.UTC(),
		UptimeSec: int64(now.Sub(self.started) / time.Second),
	}
	if self.snapshot != nil {
		s.Upload = self.snapshot()
	}
	if self.cell != nil {
		s.Modem = self.cell.Mode() + "/" + self.cell.SocketState()
	}
	self.stat.Lock()
	s.Errors = self.stat.Errors
	s.LastError = self.stat.LastError
	self.stat.Unlock()

	b, err := json.Marshal(s)
	if err != nil {
		return errors.Annotate(err, "tele status marshal")
	}
	self.log.Debugf("tele report %s", b)
	if err := self.transport.Publish(ctx, self.topicStatus, b); err != nil {
		return errors.Annotate(err, "tele report")
	}
	self.stat.Lock()
	self.stat.Errors -= s.Errors
	if self.stat.Errors == 0 {
		self.stat.LastError = ""
	}
	self.stat.Unlock()
	return nil
}

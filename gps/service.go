package gps

import (
	"context"
	"fmt"
	"strings"
	"time"

	gps_config "github.com/gogotrans/geotrack/gps/config"
	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	"github.com/juju/errors"
)

const (
	DefaultGnssConfig   = 31 // GPS+GLONASS+BeiDou+Galileo+QZSS
	DefaultFetchTimeout = 5 * time.Second
)

// Quectel GNSS error codes.
const (
	codeSessionActive = 504
	codeNoFix         = 516
)

// Service drives modem built-in GNSS engine.
type Service struct {
	Log          *log2.Log
	m            *modem.Modem
	gnssConfig   int
	fetchTimeout time.Duration
	enabled      bool
}

func NewService(m *modem.Modem, c gps_config.Config, log *log2.Log) *Service {
	self := &Service{
		Log:          log,
		m:            m,
		gnssConfig:   c.GnssConfig,
		fetchTimeout: helpers.IntMillisecondDefault(c.FetchTimeoutMs, DefaultFetchTimeout),
	}
	if self.gnssConfig == 0 {
		self.gnssConfig = DefaultGnssConfig
	}
	return self
}

// Enable starts GNSS session. Already running session is fine.
func (self *Service) Enable() error {
	if _, err := self.m.Command("AT+QGPS=1", modem.DefaultCommandTimeout); err != nil {
		if modem.ErrorCode(err) != codeSessionActive {
			return errors.Annotate(err, "gps enable")
		}
	}
	cfg := fmt.Sprintf(`AT+QGPSCFG="gnssconfig",%d`, self.gnssConfig)
	if _, err := self.m.Command(cfg, modem.DefaultCommandTimeout); err != nil {
		self.Log.Debugf("gps gnssconfig err=%v", err)
	}
	resp, err := self.m.Command("AT+QGPS?", modem.DefaultCommandTimeout)
	if err != nil {
		return errors.Annotate(err, "gps status")
	}
	if v, ok := modem.Field(resp, "+QGPS:"); !ok || strings.TrimSpace(v) != "1" {
		return modem.ProtocolError{Command: "AT+QGPS?", Response: resp}
	}
	self.enabled = true
	self.Log.Infof("gps enabled gnssconfig=%d", self.gnssConfig)
	return nil
}

func (self *Service) Disable() error {
	self.enabled = false
	if _, err := self.m.Command("AT+QGPSEND", modem.DefaultCommandTimeout); err != nil {
		return errors.Annotate(err, "gps disable")
	}
	return nil
}

// Fetch queries current fix. No fix yet is reported as NotFound.
func (self *Service) Fetch(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, errors.Trace(err)
	}
	if !self.enabled {
		if err := self.Enable(); err != nil {
			return Fix{}, err
		}
	}
	resp, err := self.m.Command("AT+QGPSLOC=0", self.fetchTimeout)
	if err != nil {
		switch modem.ErrorCode(err) {
		case codeNoFix:
			return Fix{}, errors.NotFoundf("gps fix")
		case -1:
		default:
			// engine may have been stopped behind our back
			self.enabled = false
		}
		return Fix{}, errors.Annotate(err, "gps fetch")
	}
	f, err := ParseLoc(resp)
	if err != nil {
		return Fix{}, errors.Annotate(err, "gps fetch")
	}
	return f, nil
}

// WaitFix polls Fetch until fix or timeout.
func (self *Service) WaitFix(ctx context.Context, timeout, interval time.Duration) (Fix, error) {
	clock := self.m.Clock()
	deadline := clock.Now().Add(timeout)
	for {
		f, err := self.Fetch(ctx)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return Fix{}, errors.Trace(ctx.Err())
		}
		self.Log.Debugf("gps wait err=%v", err)
		if !clock.Now().Add(interval).Before(deadline) {
			return Fix{}, errors.Timeoutf("gps fix within %v (last error: %v)", timeout, err)
		}
		clock.Sleep(interval)
	}
}

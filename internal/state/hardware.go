package state

import (
	"expvar"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogotrans/geotrack/cellular"
	"github.com/gogotrans/geotrack/gps"
	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	"github.com/juju/errors"
)

const (
	GpsSourceModem = "modem"
	GpsSourceNmea  = "nmea"

	DefaultModemSync     = 10 * time.Second
	DefaultModemPowerOff = time.Second
	DefaultModemBoot     = 15 * time.Second
)

var (
	statModemRx = expvar.NewInt("modem_rx_bytes")
	statModemTx = expvar.NewInt("modem_tx_bytes")
)

type hardware struct {
	Modem struct {
		once
		// tests set Port before first Modem()
		Port  modem.Porter
		m     *modem.Modem
		power *modem.Power
	}
	Cellular struct {
		once
		c *cellular.Client
	}
	Gps struct {
		once
		src  gps.Source
		nmea *gps.NMEAReceiver
	}
}

func (g *Global) Modem() (*modem.Modem, error) {
	x := &g.Hardware.Modem // short alias
	_ = x.do(func() error {
		cfg := &g.Config.Modem
		log := g.Log.Clone(log2.LInfo)
		if cfg.LogDebug {
			log = g.Log.Clone(log2.LDebug)
		}
		clock := g.clock()

		if cfg.PowerChip != "" {
			pin, err := strconv.ParseUint(cfg.PowerPin, 10, 32)
			if err != nil {
				return errors.NotValidf("config: modem.power_pin=%s", cfg.PowerPin)
			}
			if x.power, err = modem.OpenPower(cfg.PowerChip, uint32(pin)); err != nil {
				return errors.Annotate(err, "modem power")
			}
			if err = x.power.Set(true); err != nil {
				return errors.Annotate(err, "modem power on")
			}
		}

		if x.Port == nil {
			if cfg.Device == "" {
				return errors.NotValidf("config: modem.device empty")
			}
			var err error
			x.Port, err = modem.OpenSerial(cfg.Device, cfg.Baud, helpers.IntMillisecondDefault(cfg.ReadTimeoutMs, 0))
			if err != nil {
				return err
			}
		}
		m := modem.New(helpers.NewStatPort(x.Port, statModemRx, statModemTx), log)
		m.SetClock(clock)
		if cfg.LogDebug {
			m.SetSink(log.Writer(log2.LDebug, "modem rx "))
		}

		syncTimeout := helpers.IntSecondDefault(cfg.SyncTimeoutSec, DefaultModemSync)
		err := m.Sync(syncTimeout)
		if err != nil && x.power != nil {
			log.Errorf("modem sync err=%v, power cycle", err)
			off := helpers.IntMillisecondDefault(cfg.PowerOffMs, DefaultModemPowerOff)
			boot := helpers.IntSecondDefault(cfg.BootSec, DefaultModemBoot)
			if err = x.power.Cycle(clock, off, boot); err == nil {
				m.Discard()
				err = m.Sync(syncTimeout)
			}
		}
		if err != nil {
			return errors.Annotate(err, "modem")
		}
		x.m = m
		return nil
	})
	return x.m, x.err
}

// Cellular returns nil client without error when disabled by config.
func (g *Global) Cellular() (*cellular.Client, error) {
	x := &g.Hardware.Cellular
	_ = x.do(func() error {
		if !g.Config.Cellular.Enabled {
			g.Log.Debugf("config: cellular disabled")
			return nil
		}
		m, err := g.Modem()
		if err != nil {
			return errors.Annotate(err, "cellular")
		}
		x.c = cellular.NewClient(m, g.Config.Cellular, g.Log)
		return nil
	})
	return x.c, x.err
}

func (g *Global) GpsSource() (gps.Source, error) {
	x := &g.Hardware.Gps
	_ = x.do(func() error {
		cfg := g.Config.Gps
		switch cfg.Source {
		case "", GpsSourceModem:
			m, err := g.Modem()
			if err != nil {
				return errors.Annotate(err, "gps")
			}
			x.src = gps.NewService(m, cfg, g.Log)
			return nil

		case GpsSourceNmea:
			var err error
			x.nmea, err = gps.OpenNMEA(cfg, g.Log)
			if err != nil {
				return err
			}
			x.src = x.nmea
			return nil

		default:
			return errors.NotValidf("config: gps.source=%s", cfg.Source)
		}
	})
	return x.src, x.err
}

func (h *hardware) close(g *Global) []error {
	errs := make([]error, 0, 4)
	if h.Gps.nmea != nil {
		errs = append(errs, errors.Annotate(h.Gps.nmea.Close(), "gps nmea close"))
	}
	if h.Modem.m != nil {
		errs = append(errs, errors.Annotate(h.Modem.m.Close(), "modem close"))
	}
	if err := h.Modem.power.Close(); err != nil {
		errs = append(errs, errors.Annotate(err, "modem power close"))
	}
	return errs
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}

package gps

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	gps_config "github.com/gogotrans/geotrack/gps/config"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/juju/errors"
)

const (
	DefaultNmeaBaud     = 9600
	DefaultNmeaMaxLines = 64
)

// NMEAReceiver reads external receiver. Fix is completed by RMC,
// altitude and satellites come from latest GGA.
type NMEAReceiver struct {
	Log      *log2.Log
	mu       sync.Mutex
	port     io.ReadCloser
	r        *bufio.Reader
	maxLines int
	gga      *nmea.GGA
}

func OpenNMEA(c gps_config.Config, log *log2.Log) (*NMEAReceiver, error) {
	if c.NmeaDevice == "" {
		return nil, errors.NotValidf("gps nmea_device empty")
	}
	baud := c.NmeaBaud
	if baud == 0 {
		baud = DefaultNmeaBaud
	}
	opts := serial.OpenOptions{
		PortName:              c.NmeaDevice,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 500,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Annotatef(err, "gps nmea open %s", c.NmeaDevice)
	}
	log.Debugf("gps nmea opened %s baud=%d", c.NmeaDevice, baud)
	return NewNMEAReceiver(port, c.NmeaMaxLines, log), nil
}

func NewNMEAReceiver(port io.ReadCloser, maxLines int, log *log2.Log) *NMEAReceiver {
	if maxLines <= 0 {
		maxLines = DefaultNmeaMaxLines
	}
	return &NMEAReceiver{
		Log:      log,
		port:     port,
		r:        bufio.NewReader(port),
		maxLines: maxLines,
	}
}

func (self *NMEAReceiver) Close() error { return self.port.Close() }

// Fetch reads sentences until valid RMC. Gives up after maxLines lines.
func (self *NMEAReceiver) Fetch(ctx context.Context) (Fix, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for i := 0; i < self.maxLines; i++ {
		if err := ctx.Err(); err != nil {
			return Fix{}, errors.Trace(err)
		}
		line, err := self.r.ReadString('\n')
		if err != nil {
			if err == io.EOF || err == io.ErrNoProgress {
				return Fix{}, errors.Timeoutf("gps nmea read")
			}
			return Fix{}, errors.Annotate(err, "gps nmea read")
		}
		if f, ok := self.feed(line); ok {
			return f, nil
		}
	}
	return Fix{}, errors.NotFoundf("gps nmea fix in %d lines", self.maxLines)
}

func (self *NMEAReceiver) feed(line string) (Fix, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false
	}
	s, err := nmea.Parse(line)
	if err != nil {
		self.Log.Debugf("gps nmea parse line=%q err=%v", line, err)
		return Fix{}, false
	}
	switch s.DataType() {
	case nmea.TypeGGA:
		g := s.(nmea.GGA)
		self.gga = &g
	case nmea.TypeRMC:
		m := s.(nmea.RMC)
		if string(m.Validity) != "A" || !m.Date.Valid || !m.Time.Valid {
			return Fix{}, false
		}
		return self.fixFromRMC(m), true
	}
	return Fix{}, false
}

func (self *NMEAReceiver) fixFromRMC(m nmea.RMC) Fix {
	t := time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second, 0, time.UTC)
	f := Fix{
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		Speed:      m.Speed * 1.852,
		Course:     m.Course,
		FixType:    1,
		AcquiredAt: helpers.ISO8601(t),
	}
	// GGA of same second
	if g := self.gga; g != nil && g.Time.Hour == m.Time.Hour && g.Time.Minute == m.Time.Minute && g.Time.Second == m.Time.Second {
		f.Altitude = g.Altitude
		f.HDOP = g.HDOP
		if g.NumSatellites > 0 && g.NumSatellites <= 255 {
			f.SatelliteCount = uint8(g.NumSatellites)
		}
	}
	return f
}

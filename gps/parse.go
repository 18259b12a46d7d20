package gps

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const locTag = "+QGPSLOC:"

// utc,lat,lon,hdop,alt,fix,cog,spkm,spkn,date,nsat
const minLocTokens = 11

const hemispheres = "NSEW"

// ParseLoc decodes AT+QGPSLOC=0 response or bare record.
// Hemisphere may be glued to coordinate or follow it as separate token.
// Fails closed: any missing or malformed mandatory token is an error.
func ParseLoc(raw string) (Fix, error) {
	rec := raw
	if i := strings.Index(rec, locTag); i >= 0 {
		rec = rec[i+len(locTag):]
	}
	if i := strings.IndexByte(rec, '\n'); i >= 0 {
		rec = rec[:i]
	}
	rec = strings.TrimSpace(strings.Replace(rec, "\r", "", -1))
	if rec == "" {
		return Fix{}, errors.NotValidf("QGPSLOC empty record")
	}
	toks := strings.Split(rec, ",")
	for i := range toks {
		toks[i] = strings.TrimSpace(toks[i])
	}
	if len(toks) < minLocTokens {
		return Fix{}, errors.NotValidf("QGPSLOC tokens=%d record=%q", len(toks), rec)
	}

	c := &cursor{toks: toks}
	utc := c.next("utc")
	lat := c.coord("latitude")
	lon := c.coord("longitude")
	f := Fix{Latitude: lat, Longitude: lon}
	f.HDOP = c.float("hdop")
	f.Altitude = c.float("altitude")
	f.FixType = c.int("fix")
	f.Course = c.float("cog")
	f.Speed = c.float("spkm")
	_ = c.float("spkn")
	date := c.next("date")
	// best effort: duplicate utc only when enough tokens remain
	switch c.left() {
	case 0:
		c.fail(errors.NotValidf("QGPSLOC nsat missing"))
	case 1:
	default:
		if utc2 := c.next("utc2"); utc2 != "" {
			utc = utc2
		}
	}
	nsat := c.int("nsat")
	if c.err != nil {
		return Fix{}, errors.Annotatef(c.err, "record=%q", rec)
	}
	if f.FixType < 1 {
		return Fix{}, errors.NotValidf("QGPSLOC no fix, fix type=%d", f.FixType)
	}
	if nsat < 0 || nsat > math.MaxUint8 {
		return Fix{}, errors.NotValidf("QGPSLOC nsat=%d", nsat)
	}
	f.SatelliteCount = uint8(nsat)
	ts, err := locTimestamp(date, utc)
	if err != nil {
		return Fix{}, errors.Annotatef(err, "record=%q", rec)
	}
	f.AcquiredAt = ts
	return f, nil
}

// ToDecimal converts NMEA ddmm.mmmm to decimal degrees.
func ToDecimal(v float64, hemi byte) float64 {
	d := math.Floor(v/100) + math.Mod(v, 100)/60
	if hemi == 'S' || hemi == 'W' {
		d = -d
	}
	return d
}

// locTimestamp builds "20YY-MM-DDThh:mm:ss+00:00" from ddmmyy and hhmmss[.sss].
func locTimestamp(date, utc string) (string, error) {
	if len(date) != 6 || !digits(date) {
		return "", errors.NotValidf("QGPSLOC date=%q", date)
	}
	if len(utc) < 6 || !digits(utc[:6]) {
		return "", errors.NotValidf("QGPSLOC utc=%q", utc)
	}
	return fmt.Sprintf("20%s-%s-%sT%s:%s:%s+00:00",
		date[4:6], date[2:4], date[0:2], utc[0:2], utc[2:4], utc[4:6]), nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// cursor keeps first error, subsequent reads return zero values.
type cursor struct {
	toks []string
	i    int
	err  error
}

func (self *cursor) fail(err error) {
	if self.err == nil {
		self.err = err
	}
}

func (self *cursor) left() int { return len(self.toks) - self.i }

func (self *cursor) next(name string) string {
	if self.err != nil {
		return ""
	}
	if self.i >= len(self.toks) {
		self.fail(errors.NotValidf("QGPSLOC %s missing", name))
		return ""
	}
	s := self.toks[self.i]
	self.i++
	return s
}

func (self *cursor) float(name string) float64 {
	s := self.next(name)
	if self.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		self.fail(errors.NotValidf("QGPSLOC %s=%q", name, s))
	}
	return v
}

func (self *cursor) int(name string) int {
	s := self.next(name)
	if self.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		self.fail(errors.NotValidf("QGPSLOC %s=%q", name, s))
	}
	return v
}

func (self *cursor) coord(name string) float64 {
	s := self.next(name)
	if self.err != nil {
		return 0
	}
	var hemi byte
	if n := len(s); n > 1 && strings.IndexByte(hemispheres, s[n-1]) >= 0 {
		hemi = s[n-1]
		s = s[:n-1]
	} else if self.left() > 0 {
		if h := self.toks[self.i]; len(h) == 1 && strings.IndexByte(hemispheres, h[0]) >= 0 {
			hemi = h[0]
			self.i++
		}
	}
	if hemi == 0 {
		self.fail(errors.NotValidf("QGPSLOC %s=%q hemisphere", name, s))
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		self.fail(errors.NotValidf("QGPSLOC %s=%q", name, s))
		return 0
	}
	return ToDecimal(v, hemi)
}

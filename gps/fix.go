// Package gps produces position fixes from modem GNSS engine or external NMEA receiver.
package gps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Fix is one resolved position sample.
type Fix struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Altitude       float64 `json:"altitude"`
	Speed          float64 `json:"speed"` // km/h
	SatelliteCount uint8   `json:"satelliteCount"`
	AcquiredAt     string  `json:"dataAcquiredAt"`

	// not persisted
	HDOP    float64 `json:"-"`
	Course  float64 `json:"-"`
	FixType int     `json:"-"`
}

// Source is anything that can acquire current fix.
type Source interface {
	Fetch(ctx context.Context) (Fix, error)
}

const (
	slotFields       = 6
	legacySlotFields = 5
)

func (self Fix) String() string {
	return fmt.Sprintf("lat=%.6f lon=%.6f alt=%.1f speed=%.1f sat=%d at=%s",
		self.Latitude, self.Longitude, self.Altitude, self.Speed, self.SatelliteCount, self.AcquiredAt)
}

// MarshalText renders queue slot record "lat,lon,alt,speed,timestamp,satCount".
func (self Fix) MarshalText() ([]byte, error) {
	if strings.IndexByte(self.AcquiredAt, ',') >= 0 {
		return nil, errors.NotValidf("fix timestamp=%q", self.AcquiredAt)
	}
	s := fmt.Sprintf("%.8f,%.8f,%.2f,%.2f,%s,%d",
		self.Latitude, self.Longitude, self.Altitude, self.Speed, self.AcquiredAt, self.SatelliteCount)
	return []byte(s), nil
}

// UnmarshalText accepts current 6-field record and legacy 5-field one without satCount.
func (self *Fix) UnmarshalText(b []byte) error {
	parts := strings.Split(string(b), ",")
	if len(parts) != slotFields && len(parts) != legacySlotFields {
		return errors.NotValidf("fix record fields=%d", len(parts))
	}
	var f Fix
	var err error
	for i, dst := range []*float64{&f.Latitude, &f.Longitude, &f.Altitude, &f.Speed} {
		if *dst, err = strconv.ParseFloat(strings.TrimSpace(parts[i]), 64); err != nil {
			return errors.NotValidf("fix record field %d=%q", i, parts[i])
		}
	}
	f.AcquiredAt = parts[4]
	if len(parts) == slotFields {
		n, err := strconv.ParseUint(strings.TrimSpace(parts[5]), 10, 8)
		if err != nil {
			return errors.NotValidf("fix record satCount=%q", parts[5])
		}
		f.SatelliteCount = uint8(n)
	}
	*self = f
	return nil
}

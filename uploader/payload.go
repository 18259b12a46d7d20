package uploader

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/gogotrans/geotrack/gps"
	"github.com/juju/errors"
)

// field order is part of upstream contract
type payload struct {
	SensorId       string      `json:"sensorId,omitempty"`
	Latitude       json.Number `json:"latitude"`
	Longitude      json.Number `json:"longitude"`
	Altitude       json.Number `json:"altitude"`
	Speed          json.Number `json:"speed"`
	SatelliteCount uint8       `json:"satelliteCount"`
	NetworkSource  string      `json:"networkSource,omitempty"`
	AcquiredAt     string      `json:"dataAcquiredAt"`
}

// BuildPayload renders upstream JSON body.
func BuildPayload(f gps.Fix, sensorId, networkSource string) ([]byte, error) {
	for _, v := range []float64{f.Latitude, f.Longitude, f.Altitude, f.Speed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NotValidf("fix value %v", v)
		}
	}
	p := payload{
		SensorId:       sensorId,
		Latitude:       json.Number(FormatCoordinate(f.Latitude)),
		Longitude:      json.Number(FormatCoordinate(f.Longitude)),
		Altitude:       json.Number(strconv.FormatFloat(f.Altitude, 'f', 2, 64)),
		Speed:          json.Number(strconv.FormatFloat(f.Speed, 'f', 2, 64)),
		SatelliteCount: f.SatelliteCount,
		NetworkSource:  networkSource,
		AcquiredAt:     f.AcquiredAt,
	}
	b, err := json.Marshal(p)
	return b, errors.Trace(err)
}

// FormatCoordinate keeps at most 8 significant digits, 0..6 decimals.
func FormatCoordinate(v float64) string {
	digits := 1
	if a := math.Abs(v); a >= 1 {
		digits = int(math.Floor(math.Log10(a))) + 1
	}
	decimals := 8 - digits
	if decimals < 0 {
		decimals = 0
	} else if decimals > 6 {
		decimals = 6
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

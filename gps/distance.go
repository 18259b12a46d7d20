package gps

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const earthRadiusM = 6371008.8

// Distance is great-circle distance between fixes in meters.
func Distance(a, b Fix) float64 {
	pa := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	pb := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return angleMeters(pa.Distance(pb))
}

func angleMeters(a s1.Angle) float64 { return a.Radians() * earthRadiusM }

// Package geotime holds the pure geographic and civil-time helpers used by the
// clock-in geofence: haversine distance, the radius decision, and the record
// store's local timestamp format.
package geotime

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMiles is the mean Earth radius used by DistanceMiles
	EarthRadiusMiles = 3958.8

	// DefaultRadiusMiles is how far from the job origin a worker may clock in
	DefaultRadiusMiles = 0.25
)

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String renders the point the way check-in records store coordinates: "lat, lon".
func (p Point) String() string {
	return fmt.Sprintf("%v, %v", p.Lat, p.Lon)
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceMiles returns the great-circle distance between two coordinates
// using the haversine formula.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMiles * c
}

// Distance is DistanceMiles over two Points.
func Distance(a, b Point) float64 {
	return DistanceMiles(a.Lat, a.Lon, b.Lat, b.Lon)
}

// WithinRadius reports whether distanceMiles is inside the threshold.
// The boundary itself counts as inside; only a strictly greater distance fails.
func WithinRadius(distanceMiles, thresholdMiles float64) bool {
	return distanceMiles <= thresholdMiles
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

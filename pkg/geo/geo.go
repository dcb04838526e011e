// Package geo holds the coordinate type shared by the directions oracle, the
// location tracker and the navigation stepper, plus the great-circle math used
// for waypoint arrival detection.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters used by [Distance].
const EarthRadius = 6371e3

// Coordinates is a WGS-84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String implements [fmt.Stringer].
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// Valid reports whether c lies within the legal latitude/longitude ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Distance returns the haversine great-circle distance between a and b in
// meters. It is symmetric and returns 0 for identical points.
func Distance(a, b Coordinates) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	dLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c
}

// FormatDistance renders meters the way they are spoken to the user: whole
// meters below one kilometer, kilometers with one decimal otherwise.
//
//	FormatDistance(500)  == "500 meters"
//	FormatDistance(1234) == "1.2 kilometers"
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d meters", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f kilometers", meters/1000)
}

// Package geo holds the coordinate arithmetic shared by the filtering
// pipeline, the recommendation engine and the geocoding fallbacks.
package geo

import "math"

// EarthRadiusKM is the mean Earth radius used by the haversine formula.
const EarthRadiusKM = 6371

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate is usable: finite, within range, and
// not the (0,0) null-island sentinel some devices report on failure.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	if math.Abs(c.Lat) > 90 || math.Abs(c.Lng) > 180 {
		return false
	}
	if c.Lat == 0 && c.Lng == 0 {
		return false
	}
	return true
}

// Distance returns the great-circle distance in kilometres between two points
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKM * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

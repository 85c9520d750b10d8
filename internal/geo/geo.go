package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f,%.4f)", p.Latitude, p.Longitude)
}

// Valid reports whether the point is a usable WGS-84 coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceKm returns the great-circle distance between a and b using the
// haversine formula. The result is symmetric and exactly zero for a == b.
func DistanceKm(a, b Point) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// rounding can push h slightly outside [0,1] for antipodal points
	if h > 1 {
		h = 1
	}
	if h <= 0 {
		return 0
	}

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsWithinRadius reports whether point lies within radiusKm of center.
// The boundary is inclusive.
func IsWithinRadius(point, center Point, radiusKm float64) bool {
	return DistanceKm(point, center) <= radiusKm
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

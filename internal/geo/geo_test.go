package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_Symmetric(t *testing.T) {
	points := []Point{
		{Latitude: 12.0, Longitude: 77.0},
		{Latitude: 12.3, Longitude: 77.2},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 51.5074, Longitude: -0.1278},
		{Latitude: 89.99, Longitude: 179.99},
		{Latitude: -89.5, Longitude: -179.5},
		{Latitude: 0, Longitude: 0},
	}

	for _, a := range points {
		for _, b := range points {
			assert.Equal(t, DistanceKm(a, b), DistanceKm(b, a), "distance %v <-> %v", a, b)
		}
	}
}

func TestDistanceKm_ZeroForSamePoint(t *testing.T) {
	for _, p := range []Point{
		{Latitude: 12.0, Longitude: 77.0},
		{Latitude: -45.123, Longitude: 170.5},
		{Latitude: 90, Longitude: 0},
	} {
		assert.Zero(t, DistanceKm(p, p))
	}
}

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{"london-paris", Point{51.5074, -0.1278}, Point{48.8566, 2.3522}, 343.5, 2},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111.19, 0.1},
		{"bengaluru short hop", Point{12.0, 77.0}, Point{12.3, 77.2}, 39.8, 1},
		{"antipodal", Point{0, 0}, Point{0, 180}, math.Pi * earthRadiusKm, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceKm(tt.a, tt.b), tt.tol)
		})
	}
}

func TestIsWithinRadius_InclusiveBoundary(t *testing.T) {
	center := Point{Latitude: 12.0, Longitude: 77.0}
	p := Point{Latitude: 12.3, Longitude: 77.2}
	d := DistanceKm(p, center)

	assert.True(t, IsWithinRadius(p, center, d), "exactly at radius must be inside")
	assert.True(t, IsWithinRadius(p, center, d+0.001))
	assert.False(t, IsWithinRadius(p, center, math.Nextafter(d, 0)))
	assert.True(t, IsWithinRadius(center, center, 0))
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{Latitude: 45, Longitude: -120}.Valid())
	assert.False(t, Point{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Point{Latitude: 0, Longitude: 181}.Valid())
	assert.False(t, Point{Latitude: math.NaN(), Longitude: 0}.Valid())
}

package subscription

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

func d1() *models.Disaster {
	return &models.Disaster{
		ID:        "d1",
		Type:      models.DisasterTypeEarthquake,
		Severity:  models.SeverityHigh,
		Status:    models.StatusActive,
		Latitude:  12.0,
		Longitude: 77.0,
		RadiusKm:  50,
		Version:   1,
	}
}

func TestSubscribeToDisaster_Idempotent(t *testing.T) {
	r := NewRegistry()
	r.SubscribeToDisaster("c1", "d1")
	r.SubscribeToDisaster("c1", "d1")

	assert.Equal(t, []string{"c1"}, r.ResolveInterestedConnections(d1()))
}

func TestUnsubscribe_NonExistentIsNoop(t *testing.T) {
	r := NewRegistry()
	r.UnsubscribeFromDisaster("ghost", "nothing")

	r.SubscribeToDisaster("c1", "d1")
	r.UnsubscribeFromDisaster("c1", "d1")
	r.UnsubscribeFromDisaster("c1", "d1")

	assert.Empty(t, r.ResolveInterestedConnections(d1()))
	assert.Equal(t, Stats{}, r.Stats())
}

func TestResolve_ByLocation(t *testing.T) {
	r := NewRegistry()
	r.UpdateLocationInterest("near", geo.Point{Latitude: 12.3, Longitude: 77.2})
	r.UpdateLocationInterest("far", geo.Point{Latitude: 20.0, Longitude: 80.0})

	assert.Equal(t, []string{"near"}, r.ResolveInterestedConnections(d1()))
}

func TestResolve_UnionWithoutDuplicates(t *testing.T) {
	r := NewRegistry()
	r.UpdateLocationInterest("both", geo.Point{Latitude: 12.1, Longitude: 77.1})
	r.SubscribeToDisaster("both", "d1")
	r.SubscribeToDisaster("explicit", "d1")
	r.UpdateLocationInterest("located", geo.Point{Latitude: 11.9, Longitude: 76.9})

	assert.Equal(t, []string{"both", "explicit", "located"}, r.ResolveInterestedConnections(d1()))
}

func TestUpdateLocationInterest_Supersedes(t *testing.T) {
	r := NewRegistry()
	r.UpdateLocationInterest("c1", geo.Point{Latitude: 12.1, Longitude: 77.1})
	r.UpdateLocationInterest("c1", geo.Point{Latitude: 40, Longitude: -74})

	assert.Empty(t, r.ResolveInterestedConnections(d1()))

	p, ok := r.LastLocation("c1")
	assert.True(t, ok)
	assert.Equal(t, geo.Point{Latitude: 40, Longitude: -74}, p)
}

func TestResolve_RadiusBoundaryInclusive(t *testing.T) {
	r := NewRegistry()
	p := geo.Point{Latitude: 12.3, Longitude: 77.2}
	r.UpdateLocationInterest("edge", p)

	d := d1()
	d.RadiusKm = geo.DistanceKm(p, d.Center())
	assert.Equal(t, []string{"edge"}, r.ResolveInterestedConnections(d))
}

func TestResolve_FullScanMatchesIndex(t *testing.T) {
	r := NewRegistry()
	// many located connections so the index path is taken for small radii
	for i := 0; i < 200; i++ {
		lat := -60 + float64(i)*0.6
		lon := -170 + float64(i)*1.7
		r.UpdateLocationInterest(fmt.Sprintf("c%03d", i), geo.Point{Latitude: lat, Longitude: lon})
	}

	for _, radius := range []float64{10, 200, 1500, 25000} {
		d := &models.Disaster{ID: "x", Status: models.StatusActive, Latitude: 0, Longitude: 0, RadiusKm: radius}

		var want []string
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("c%03d", i)
			p, _ := r.LastLocation(id)
			if geo.IsWithinRadius(p, d.Center(), radius) {
				want = append(want, id)
			}
		}

		got := r.ResolveInterestedConnections(d)
		if len(want) == 0 {
			assert.Empty(t, got, "radius %v", radius)
			continue
		}
		assert.Equal(t, want, got, "radius %v", radius)
	}
}

func TestOnDisconnect_RemovesEverything(t *testing.T) {
	r := NewRegistry()
	r.SubscribeToDisaster("c1", "d1")
	r.SubscribeToDisaster("c1", "d2")
	r.UpdateLocationInterest("c1", geo.Point{Latitude: 12.0, Longitude: 77.0})
	r.SubscribeToDisaster("c2", "d1")

	r.OnDisconnect("c1")
	r.OnDisconnect("c1")

	assert.Equal(t, []string{"c2"}, r.ResolveInterestedConnections(d1()))
	_, ok := r.LastLocation("c1")
	assert.False(t, ok)
	assert.Equal(t, Stats{Connections: 1, DisasterSubscribers: 1}, r.Stats())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", n)
			r.SubscribeToDisaster(id, "d1")
			r.UpdateLocationInterest(id, geo.Point{Latitude: 12, Longitude: 77})
			r.ResolveInterestedConnections(d1())
			if n%2 == 0 {
				r.OnDisconnect(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.ResolveInterestedConnections(d1()), 10)
}

package ingestion

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

var ErrSimulatedOutage = errors.New("simulated upstream outage")

// SimulatedSource produces a fixed pair of events and fails a configurable
// fraction of fetches, for local development and demos.
type SimulatedSource struct {
	failureRate float64

	mu    sync.Mutex
	float func() float64
}

func NewSimulatedSource(failureRate float64) *SimulatedSource {
	return &SimulatedSource{failureRate: failureRate, float: rand.Float64}
}

// WithRand replaces the random source, mostly for tests.
func (s *SimulatedSource) WithRand(f func() float64) *SimulatedSource {
	s.mu.Lock()
	s.float = f
	s.mu.Unlock()
	return s
}

func (s *SimulatedSource) Name() string { return "simulated" }

func (s *SimulatedSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	roll := s.float()
	s.mu.Unlock()
	if roll < s.failureRate {
		return nil, ErrSimulatedOutage
	}

	return []RawRecord{
		{
			Source:      s.Name(),
			ExternalID:  "sim-1",
			Type:        models.DisasterTypeEarthquake,
			Severity:    models.SeverityHigh,
			Status:      models.StatusActive,
			Point:       geo.Point{Latitude: 12.0, Longitude: 77.0},
			RadiusKm:    50,
			Title:       "Simulated M6.1 earthquake",
			Description: "Strong shaking reported near the epicenter.",
			Magnitude:   6.1,
		},
		{
			Source:      s.Name(),
			ExternalID:  "sim-2",
			Type:        models.DisasterTypeFlood,
			Severity:    models.SeverityMedium,
			Status:      models.StatusActive,
			Point:       geo.Point{Latitude: 19.076, Longitude: 72.8777},
			RadiusKm:    30,
			Title:       "Simulated urban flooding",
			Description: "Heavy rainfall has flooded low-lying districts.",
		},
	}, nil
}

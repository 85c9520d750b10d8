package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

// Source is one upstream feed. Fetch may fail transiently; the manager
// retries it.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// RawRecord is a source record reduced to the fields the catalog needs.
type RawRecord struct {
	Source      string
	ExternalID  string
	Type        models.DisasterType
	Severity    models.Severity
	Status      models.Status
	Point       geo.Point
	RadiusKm    float64
	Title       string
	Description string
	Magnitude   float64
	ReportURL   string
	StartedAt   time.Time
}

var ErrInvalidRecord = errors.New("invalid record")

// defaultRadiusKm is used when a feed gives no affect radius.
var defaultRadiusKm = map[models.DisasterType]float64{
	models.DisasterTypeEarthquake: 100,
	models.DisasterTypeFlood:      50,
	models.DisasterTypeCyclone:    300,
	models.DisasterTypeTsunami:    200,
	models.DisasterTypeVolcano:    30,
	models.DisasterTypeWildfire:   10,
	models.DisasterTypeDrought:    200,
	models.DisasterTypeStorm:      75,
	models.DisasterTypeHeatwave:   150,
	models.DisasterTypeLandslide:  5,
}

const fallbackRadiusKm = 50

// Normalize validates the record and converts it to a catalog candidate.
// Missing status means ACTIVE, missing severity means LOW and a missing
// radius falls back to a per-type default.
func (r RawRecord) Normalize() (models.Disaster, error) {
	if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.ExternalID) == "" {
		return models.Disaster{}, fmt.Errorf("%w: missing source or external id", ErrInvalidRecord)
	}
	if !r.Point.Valid() {
		return models.Disaster{}, fmt.Errorf("%w: %s/%s has invalid location %v", ErrInvalidRecord, r.Source, r.ExternalID, r.Point)
	}

	status := r.Status
	if status == "" {
		status = models.StatusActive
	}
	severity := r.Severity
	if severity == models.SeverityUnknown {
		severity = models.SeverityLow
	}
	radius := r.RadiusKm
	if radius <= 0 {
		radius = defaultRadiusKm[r.Type]
		if radius == 0 {
			radius = fallbackRadiusKm
		}
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = fmt.Sprintf("%s reported by %s", strings.ToLower(r.Type.String()), r.Source)
	}

	return models.Disaster{
		ID:          models.DisasterID(r.Source, r.ExternalID),
		Source:      r.Source,
		ExternalID:  r.ExternalID,
		Type:        r.Type,
		Severity:    severity,
		Status:      status,
		Latitude:    r.Point.Latitude,
		Longitude:   r.Point.Longitude,
		RadiusKm:    radius,
		Title:       title,
		Description: r.Description,
		Magnitude:   r.Magnitude,
		ReportURL:   r.ReportURL,
		StartedAt:   r.StartedAt.UTC(),
	}, nil
}

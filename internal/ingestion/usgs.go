package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag     float64 `json:"mag"`
	Place   string  `json:"place"`
	Time    int64   `json:"time"` // unix millis
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Type    string  `json:"type"`
	Tsunami int     `json:"tsunami"` // 0 or 1
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// USGSSource reads the USGS real-time earthquake GeoJSON summary feed.
type USGSSource struct {
	url     string
	fetcher *HTTPFetcher
	logger  *slog.Logger
}

func NewUSGSSource(url string, fetcher *HTTPFetcher, logger *slog.Logger) *USGSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &USGSSource{url: url, fetcher: fetcher, logger: logger}
}

func (s *USGSSource) Name() string { return "usgs" }

func (s *USGSSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	body, err := s.fetcher.Get(ctx, s.url, "application/geo+json")
	if err != nil {
		return nil, err
	}

	var data usgsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding usgs feed: %w", err)
	}

	records := make([]RawRecord, 0, len(data.Features))
	for _, f := range data.Features {
		if f.Properties.Type != "" && f.Properties.Type != "earthquake" {
			continue
		}
		if len(f.Geometry.Coordinates) < 2 {
			s.logger.Warn("usgs feature without coordinates", "id", f.ID)
			continue
		}

		desc := f.Properties.Place
		if f.Properties.Tsunami == 1 {
			desc = strings.TrimSpace(desc + ". Tsunami evaluation issued.")
		}

		records = append(records, RawRecord{
			Source:      s.Name(),
			ExternalID:  f.ID,
			Type:        models.DisasterTypeEarthquake,
			Severity:    magnitudeSeverity(f.Properties.Mag),
			Status:      models.StatusActive,
			Point:       geo.Point{Latitude: f.Geometry.Coordinates[1], Longitude: f.Geometry.Coordinates[0]},
			RadiusKm:    magnitudeRadiusKm(f.Properties.Mag),
			Title:       f.Properties.Title,
			Description: desc,
			Magnitude:   f.Properties.Mag,
			ReportURL:   f.Properties.URL,
			StartedAt:   time.UnixMilli(f.Properties.Time),
		})
	}

	return records, nil
}

func magnitudeSeverity(mag float64) models.Severity {
	switch {
	case mag >= 7:
		return models.SeverityCritical
	case mag >= 5.5:
		return models.SeverityHigh
	case mag >= 4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// magnitudeRadiusKm is a coarse felt-area radius.
func magnitudeRadiusKm(mag float64) float64 {
	switch {
	case mag >= 7:
		return 400
	case mag >= 6:
		return 200
	case mag >= 5:
		return 100
	case mag >= 4:
		return 50
	default:
		return 25
	}
}

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

type noaaResponse struct {
	Features []noaaFeature `json:"features"`
}

type noaaFeature struct {
	Properties noaaProperties `json:"properties"`
	Geometry   *noaaGeometry  `json:"geometry"`
}

type noaaProperties struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Severity    string    `json:"severity"` // CAP: Extreme, Severe, Moderate, Minor, Unknown
	MessageType string    `json:"messageType"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	AreaDesc    string    `json:"areaDesc"`
	Onset       time.Time `json:"onset"`
	Effective   time.Time `json:"effective"`
	Expires     time.Time `json:"expires"`
	Ends        time.Time `json:"ends"`
	Web         string    `json:"@id"`
}

type noaaGeometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"` // Polygon rings of [lon, lat]
}

const minAlertRadiusKm = 5

// NOAASource reads active weather alerts from api.weather.gov. Alerts that
// only reference forecast zones carry no geometry and are skipped.
type NOAASource struct {
	url     string
	fetcher *HTTPFetcher
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewNOAASource(url string, fetcher *HTTPFetcher, clock clockwork.Clock, logger *slog.Logger) *NOAASource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NOAASource{url: url, fetcher: fetcher, clock: clock, logger: logger}
}

func (s *NOAASource) Name() string { return "noaa" }

func (s *NOAASource) Fetch(ctx context.Context) ([]RawRecord, error) {
	body, err := s.fetcher.Get(ctx, s.url, "application/geo+json")
	if err != nil {
		return nil, err
	}

	var data noaaResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding noaa feed: %w", err)
	}

	now := s.clock.Now()
	records := make([]RawRecord, 0, len(data.Features))
	skipped := 0
	for _, f := range data.Features {
		p := f.Properties
		if f.Geometry == nil || f.Geometry.Type != "Polygon" || len(f.Geometry.Coordinates) == 0 || p.ID == "" {
			skipped++
			continue
		}

		center, radius, ok := polygonCircle(f.Geometry.Coordinates[0])
		if !ok {
			skipped++
			continue
		}

		status := models.StatusActive
		if strings.EqualFold(p.MessageType, "Cancel") || (!p.Expires.IsZero() && p.Expires.Before(now)) {
			status = models.StatusResolved
		}

		started := p.Onset
		if started.IsZero() {
			started = p.Effective
		}

		title := p.Headline
		if title == "" {
			title = p.Event + " for " + p.AreaDesc
		}

		records = append(records, RawRecord{
			Source:      s.Name(),
			ExternalID:  p.ID,
			Type:        mapNOAAEvent(p.Event),
			Severity:    mapCAPSeverity(p.Severity),
			Status:      status,
			Point:       center,
			RadiusKm:    radius,
			Title:       title,
			Description: p.Description,
			ReportURL:   p.Web,
			StartedAt:   started,
		})
	}

	if skipped > 0 {
		s.logger.Debug("noaa alerts without usable geometry", "skipped", skipped)
	}
	return records, nil
}

// polygonCircle approximates a ring by its vertex centroid and the distance
// to its farthest vertex.
func polygonCircle(ring [][2]float64) (geo.Point, float64, bool) {
	if len(ring) < 3 {
		return geo.Point{}, 0, false
	}

	var sumLat, sumLon float64
	for _, v := range ring {
		sumLon += v[0]
		sumLat += v[1]
	}
	center := geo.Point{Latitude: sumLat / float64(len(ring)), Longitude: sumLon / float64(len(ring))}
	if !center.Valid() {
		return geo.Point{}, 0, false
	}

	radius := 0.0
	for _, v := range ring {
		if d := geo.DistanceKm(center, geo.Point{Latitude: v[1], Longitude: v[0]}); d > radius {
			radius = d
		}
	}
	if radius < minAlertRadiusKm {
		radius = minAlertRadiusKm
	}
	return center, radius, true
}

func mapCAPSeverity(s string) models.Severity {
	switch strings.ToLower(s) {
	case "extreme":
		return models.SeverityCritical
	case "severe":
		return models.SeverityHigh
	case "moderate":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func mapNOAAEvent(event string) models.DisasterType {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "tsunami"):
		return models.DisasterTypeTsunami
	case strings.Contains(e, "hurricane"), strings.Contains(e, "tropical"), strings.Contains(e, "typhoon"):
		return models.DisasterTypeCyclone
	case strings.Contains(e, "flood"):
		return models.DisasterTypeFlood
	case strings.Contains(e, "fire"):
		return models.DisasterTypeWildfire
	case strings.Contains(e, "heat"):
		return models.DisasterTypeHeatwave
	case strings.Contains(e, "drought"):
		return models.DisasterTypeDrought
	case strings.Contains(e, "avalanche"), strings.Contains(e, "debris"), strings.Contains(e, "landslide"):
		return models.DisasterTypeLandslide
	case strings.Contains(e, "volcan"), strings.Contains(e, "ash"):
		return models.DisasterTypeVolcano
	case strings.Contains(e, "earthquake"):
		return models.DisasterTypeEarthquake
	case strings.Contains(e, "storm"), strings.Contains(e, "tornado"), strings.Contains(e, "wind"),
		strings.Contains(e, "blizzard"), strings.Contains(e, "winter"), strings.Contains(e, "ice"):
		return models.DisasterTypeStorm
	default:
		return models.DisasterTypeUnknown
	}
}

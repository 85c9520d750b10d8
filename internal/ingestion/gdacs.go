package ingestion

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

type gdacsRSS struct {
	Channel gdacsChannel `xml:"channel"`
}
type gdacsChannel struct {
	Items []gdacsItem `xml:"item"`
}
type gdacsItem struct {
	Title       string        `xml:"title"`
	Description string        `xml:"description"`
	Link        string        `xml:"link"`
	PubDate     string        `xml:"pubDate"`
	Point       string        `xml:"http://www.georss.org/georss point"` // "lat lon"
	EventType   string        `xml:"http://www.gdacs.org eventtype"`
	AlertLevel  string        `xml:"http://www.gdacs.org alertlevel"`
	EventID     string        `xml:"http://www.gdacs.org eventid"`
	IsCurrent   string        `xml:"http://www.gdacs.org iscurrent"`
	Severity    gdacsSeverity `xml:"http://www.gdacs.org severity"`
}

// gdacsSeverity carries a hazard specific value, e.g. wind speed or magnitude.
type gdacsSeverity struct {
	Value float64 `xml:"value,attr"`
	Text  string  `xml:",chardata"`
}

// GDACSSource reads the GDACS multi-hazard RSS feed.
type GDACSSource struct {
	url     string
	fetcher *HTTPFetcher
	logger  *slog.Logger
}

func NewGDACSSource(url string, fetcher *HTTPFetcher, logger *slog.Logger) *GDACSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &GDACSSource{url: url, fetcher: fetcher, logger: logger}
}

func (s *GDACSSource) Name() string { return "gdacs" }

func (s *GDACSSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	body, err := s.fetcher.Get(ctx, s.url, "application/rss+xml")
	if err != nil {
		return nil, err
	}

	var data gdacsRSS
	if err := xml.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding gdacs feed: %w", err)
	}

	records := make([]RawRecord, 0, len(data.Channel.Items))
	for _, item := range data.Channel.Items {
		point, ok := parseGeoRSSPoint(item.Point)
		if !ok || item.EventID == "" {
			s.logger.Warn("skipping gdacs item", "id", item.EventID, "point", item.Point)
			continue
		}

		timestamp, err := time.Parse(time.RFC1123, item.PubDate)
		if err != nil {
			s.logger.Warn("GDACS timestamp parsing failed", "id", item.EventID, "error", err.Error())
		}

		status := models.StatusActive
		if strings.EqualFold(item.IsCurrent, "false") {
			status = models.StatusResolved
		}

		records = append(records, RawRecord{
			Source:      s.Name(),
			ExternalID:  strings.ToUpper(item.EventType) + item.EventID,
			Type:        mapGDACSEventType(item.EventType),
			Severity:    mapGDACSAlertLevel(item.AlertLevel),
			Status:      status,
			Point:       point,
			Title:       item.Title,
			Description: item.Description,
			Magnitude:   item.Severity.Value,
			ReportURL:   item.Link,
			StartedAt:   timestamp,
		})
	}

	return records, nil
}

func parseGeoRSSPoint(s string) (geo.Point, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return geo.Point{}, false
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return geo.Point{}, false
	}
	p := geo.Point{Latitude: lat, Longitude: lon}
	return p, p.Valid()
}

func mapGDACSEventType(eventType string) models.DisasterType {
	switch strings.ToUpper(eventType) {
	case "EQ":
		return models.DisasterTypeEarthquake
	case "TC":
		return models.DisasterTypeCyclone
	case "FL":
		return models.DisasterTypeFlood
	case "VO":
		return models.DisasterTypeVolcano
	case "TS":
		return models.DisasterTypeTsunami
	case "WF":
		return models.DisasterTypeWildfire
	case "DR":
		return models.DisasterTypeDrought
	default:
		return models.DisasterTypeUnknown
	}
}

func mapGDACSAlertLevel(level string) models.Severity {
	switch strings.ToLower(level) {
	case "red":
		return models.SeverityCritical
	case "orange":
		return models.SeverityHigh
	case "green":
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

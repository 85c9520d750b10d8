package api

import (
	"strings"
	"time"

	"github.com/credio/credio-alerts/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toFeature(d *models.Disaster) Feature {
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{d.Longitude, d.Latitude},
		},
		Properties: map[string]any{
			"id":          d.ID,
			"source":      d.Source,
			"type":        strings.ToLower(d.Type.String()),
			"severity":    strings.ToLower(d.Severity.String()),
			"status":      strings.ToLower(d.Status.String()),
			"title":       d.Title,
			"description": d.Description,
			"magnitude":   d.Magnitude,
			"radius_km":   d.RadiusKm,
			"report_url":  d.ReportURL,
			"version":     d.Version,
			"started_at":  d.StartedAt.Format(time.RFC3339),
			"updated_at":  d.UpdatedAt.Format(time.RFC3339),
		},
	}
}

func toGeoJSON(disasters []models.Disaster) FeatureCollection {
	features := make([]Feature, 0, len(disasters))
	for i := range disasters {
		features = append(features, toFeature(&disasters[i]))
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

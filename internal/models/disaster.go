package models

import (
	"time"

	"github.com/credio/credio-alerts/internal/geo"
)

type Disaster struct {
	ID          string // "<source>_<external id>", e.g. "usgs_us7000abcd"
	Source      string // "usgs", "gdacs", "noaa", ...
	ExternalID  string // id assigned by the upstream feed
	Type        DisasterType
	Severity    Severity
	Status      Status
	Latitude    float64
	Longitude   float64
	RadiusKm    float64 // affect radius around the center
	Title       string
	Description string
	Magnitude   float64 // source specific: Richter, FRP, GDACS severity
	ReportURL   string
	StartedAt   time.Time // when the event began upstream
	Version     int64     // starts at 1, bumped on every mutation
	LastSeenAt  time.Time // last time a feed reported it
	UpdatedAt   time.Time // last mutation
}

func DisasterID(source, externalID string) string {
	return source + "_" + externalID
}

func (d *Disaster) Center() geo.Point {
	return geo.Point{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
	}
}

// IsActive reports whether the event participates in risk computation.
func (d *Disaster) IsActive() bool {
	return d.Status == StatusActive
}

// Summary is the trimmed form sent to clients.
type Summary struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    geo.Point `json:"location"`
	RadiusKm    float64   `json:"radiusKm"`
	Version     int64     `json:"version"`
	StartedAt   time.Time `json:"startedAt"`
}

func (d *Disaster) Summary() Summary {
	return Summary{
		ID:          d.ID,
		Type:        d.Type.String(),
		Severity:    d.Severity.String(),
		Status:      d.Status.String(),
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Center(),
		RadiusKm:    d.RadiusKm,
		Version:     d.Version,
		StartedAt:   d.StartedAt,
	}
}

package models

import "time"

type AlertType string

const (
	AlertTypeEvacuation AlertType = "EVACUATION"
	AlertTypeWarning    AlertType = "WARNING"
	AlertTypeUpdate     AlertType = "UPDATE"
	AlertTypeAllClear   AlertType = "ALL_CLEAR"
)

// AlertTypeFor maps an event's lifecycle and severity to the alert kind pushed to clients.
func AlertTypeFor(d *Disaster) AlertType {
	if d.Status == StatusResolved {
		return AlertTypeAllClear
	}
	switch d.Severity {
	case SeverityCritical:
		return AlertTypeEvacuation
	case SeverityHigh:
		return AlertTypeWarning
	default:
		return AlertTypeUpdate
	}
}

// Alert is the payload of every server-pushed alert frame.
type Alert struct {
	DisasterID   string    `json:"disasterId"`
	Version      int64     `json:"version"`
	Type         AlertType `json:"type"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Instructions []string  `json:"instructions,omitempty"`
	Disaster     Summary   `json:"disaster"`
	DistanceKm   *float64  `json:"distanceKm,omitempty"`
	Impact       Impact    `json:"impact,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

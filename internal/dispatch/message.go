package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/gateway"
	"github.com/credio/credio-alerts/internal/models"
	"github.com/credio/credio-alerts/internal/risk"
)

func alertText(d *models.Disaster) string {
	kind := strings.ToLower(d.Type.String())
	if d.Type == models.DisasterTypeUnknown {
		kind = "hazard"
	}

	if d.Status == models.StatusResolved {
		return fmt.Sprintf("ALL CLEAR: %s has been resolved. Follow local guidance before returning to affected areas.", d.Title)
	}

	switch d.Severity {
	case models.SeverityCritical:
		return fmt.Sprintf("CRITICAL ALERT: %s detected near you. EVACUATE IMMEDIATELY and follow local emergency instructions.", kind)
	case models.SeverityHigh:
		return fmt.Sprintf("WARNING: %s %s in your area. %s. Prepare to evacuate and monitor official channels.", strings.ToLower(d.Severity.String()), kind, d.Title)
	case models.SeverityMedium:
		return fmt.Sprintf("ALERT: %s reported nearby. Monitor the situation and review your evacuation plan.", kind)
	default:
		return fmt.Sprintf("ADVISORY: %s activity detected in the region. Stay informed, no immediate action required.", kind)
	}
}

// buildMessage renders the frame for one connection. loc is the
// connection's last known location, if any.
func buildMessage(d *models.Disaster, loc *geo.Point, now time.Time) (gateway.Message, error) {
	alert := models.Alert{
		DisasterID: d.ID,
		Version:    d.Version,
		Type:       models.AlertTypeFor(d),
		Severity:   d.Severity.String(),
		Title:      d.Title,
		Message:    alertText(d),
		Disaster:   d.Summary(),
		CreatedAt:  now,
	}

	if d.Status == models.StatusResolved {
		return gateway.NewMessage(gateway.TypeAllClear, alert)
	}

	alert.Instructions = risk.For(d.Type)

	if loc != nil {
		dist := geo.DistanceKm(*loc, d.Center())
		if dist <= d.RadiusKm {
			alert.DistanceKm = &dist
			alert.Impact = models.ImpactFor(dist, d.RadiusKm)
			return gateway.NewMessage(gateway.TypePersonalAlert, alert)
		}
	}
	return gateway.NewMessage(gateway.TypeDisasterAlert, alert)
}

package models

import (
	"time"

	"github.com/credio/credio-alerts/internal/geo"
)

// UserLocation is the latest known position of a user. A newer snapshot
// replaces the previous one.
type UserLocation struct {
	UserID     string
	Point      geo.Point
	CapturedAt time.Time
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/credio/credio-alerts/internal/models"
)

var ErrNotFound = errors.New("not found")

type Filter struct {
	Limit       int
	Offset      int
	Since       *time.Time // started at or after
	Type        *models.DisasterType
	MinSeverity *models.Severity // >= this severity (e.g., HIGH includes HIGH and CRITICAL)
	Status      *models.Status
}

type DisasterRepository interface {
	// UpsertDisaster writes the full current state of an event keyed by id.
	UpsertDisaster(ctx context.Context, d *models.Disaster) error
	GetByID(ctx context.Context, id string) (*models.Disaster, error)
	// LoadActiveDisasters returns every event that is not RESOLVED.
	LoadActiveDisasters(ctx context.Context) ([]models.Disaster, error)
	ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error)
}

type LocationRepository interface {
	// SaveUserLocation keeps only the most recent snapshot per user.
	SaveUserLocation(ctx context.Context, loc models.UserLocation) error
	// LoadUserLastLocation returns nil without error when nothing is stored.
	LoadUserLastLocation(ctx context.Context, userID string) (*models.UserLocation, error)
}

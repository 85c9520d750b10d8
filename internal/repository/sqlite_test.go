package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	return db
}

func testDisaster(id string, typ models.DisasterType, sev models.Severity, started time.Time) *models.Disaster {
	return &models.Disaster{
		ID:         "test_" + id,
		Source:     "test",
		ExternalID: id,
		Type:       typ,
		Severity:   sev,
		Status:     models.StatusActive,
		Latitude:   35.0,
		Longitude:  139.0,
		RadiusKm:   50,
		Title:      "Test " + id,
		StartedAt:  started,
		Version:    1,
		LastSeenAt: started,
		UpdatedAt:  started,
	}
}

func TestSQLiteDB_UpsertAndGetDisaster(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	disaster := &models.Disaster{
		ID:          "gdacs_TC123",
		Source:      "gdacs",
		ExternalID:  "TC123",
		Type:        models.DisasterTypeCyclone,
		Severity:    models.SeverityCritical,
		Status:      models.StatusActive,
		Latitude:    -20.0,
		Longitude:   45.0,
		RadiusKm:    300,
		Title:       "Test Cyclone",
		Description: "Landfall expected within 24 hours",
		Magnitude:   150.0,
		ReportURL:   "https://www.gdacs.org/report.aspx?eventtype=TC&eventid=123",
		StartedAt:   now.Add(-time.Hour),
		Version:     1,
		LastSeenAt:  now,
		UpdatedAt:   now,
	}

	if err := db.UpsertDisaster(ctx, disaster); err != nil {
		t.Fatalf("UpsertDisaster failed: %v", err)
	}

	got, err := db.GetByID(ctx, "gdacs_TC123")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if *got != *disaster {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, *disaster)
	}
}

func TestSQLiteDB_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteDB_UpsertReplacesState(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	d := testDisaster("eq1", models.DisasterTypeEarthquake, models.SeverityMedium, now)
	if err := db.UpsertDisaster(ctx, d); err != nil {
		t.Fatalf("UpsertDisaster failed: %v", err)
	}

	d.Severity = models.SeverityHigh
	d.Version = 2
	d.UpdatedAt = now.Add(time.Minute)
	if err := db.UpsertDisaster(ctx, d); err != nil {
		t.Fatalf("second UpsertDisaster failed: %v", err)
	}

	got, err := db.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Version != 2 || got.Severity != models.SeverityHigh {
		t.Errorf("expected version 2 HIGH, got version %d %s", got.Version, got.Severity)
	}
}

func TestSQLiteDB_LoadActiveDisasters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	active := testDisaster("a", models.DisasterTypeFlood, models.SeverityLow, now)
	monitoring := testDisaster("m", models.DisasterTypeFlood, models.SeverityLow, now)
	monitoring.Status = models.StatusMonitoring
	resolved := testDisaster("r", models.DisasterTypeFlood, models.SeverityLow, now)
	resolved.Status = models.StatusResolved

	for _, d := range []*models.Disaster{active, monitoring, resolved} {
		if err := db.UpsertDisaster(ctx, d); err != nil {
			t.Fatalf("UpsertDisaster failed: %v", err)
		}
	}

	got, err := db.LoadActiveDisasters(ctx)
	if err != nil {
		t.Fatalf("LoadActiveDisasters failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 unresolved disasters, got %d", len(got))
	}
	if got[0].ID != "test_a" || got[1].ID != "test_m" {
		t.Errorf("unexpected ids %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSQLiteDB_ListDisasters_WithFilters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	disasters := []*models.Disaster{
		testDisaster("eq1", models.DisasterTypeEarthquake, models.SeverityCritical, now),
		testDisaster("eq2", models.DisasterTypeEarthquake, models.SeverityMedium, now.Add(-time.Hour)),
		testDisaster("fl1", models.DisasterTypeFlood, models.SeverityHigh, now.Add(-48*time.Hour)),
	}
	disasters[2].Status = models.StatusResolved
	for _, d := range disasters {
		if err := db.UpsertDisaster(ctx, d); err != nil {
			t.Fatalf("UpsertDisaster failed: %v", err)
		}
	}

	// Test type filter
	eqType := models.DisasterTypeEarthquake
	results, err := db.ListDisasters(ctx, Filter{Type: &eqType})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 earthquakes, got %d", len(results))
	}

	// Test MinSeverity filter (>= HIGH should return HIGH and CRITICAL)
	high := models.SeverityHigh
	results, err = db.ListDisasters(ctx, Filter{MinSeverity: &high})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 disasters with severity >= HIGH, got %d", len(results))
	}

	// Test status filter
	resolved := models.StatusResolved
	results, err = db.ListDisasters(ctx, Filter{Status: &resolved})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "test_fl1" {
		t.Errorf("expected only test_fl1 resolved, got %v", results)
	}

	// Test since filter
	since := now.Add(-2 * time.Hour)
	results, err = db.ListDisasters(ctx, Filter{Since: &since})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 recent disasters, got %d", len(results))
	}

	// Test limit, newest first
	results, err = db.ListDisasters(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 disasters with limit, got %d", len(results))
	}
	if results[0].ID != "test_eq1" {
		t.Errorf("expected newest first, got %s", results[0].ID)
	}

	results, err = db.ListDisasters(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 disaster after offset, got %d", len(results))
	}
}

func TestSQLiteDB_UserLocation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	got, err := db.LoadUserLastLocation(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadUserLastLocation failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no location, got %+v", got)
	}

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := models.UserLocation{UserID: "user-1", Point: geo.Point{Latitude: 12.3, Longitude: 77.2}, CapturedAt: t0}
	if err := db.SaveUserLocation(ctx, first); err != nil {
		t.Fatalf("SaveUserLocation failed: %v", err)
	}

	newer := models.UserLocation{UserID: "user-1", Point: geo.Point{Latitude: 19.0, Longitude: 72.8}, CapturedAt: t0.Add(time.Minute)}
	if err := db.SaveUserLocation(ctx, newer); err != nil {
		t.Fatalf("SaveUserLocation failed: %v", err)
	}

	// an out-of-order older snapshot does not win
	if err := db.SaveUserLocation(ctx, first); err != nil {
		t.Fatalf("SaveUserLocation failed: %v", err)
	}

	got, err = db.LoadUserLastLocation(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadUserLastLocation failed: %v", err)
	}
	if got == nil || *got != newer {
		t.Errorf("expected %+v, got %+v", newer, got)
	}
}

func TestSQLiteDB_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.db")
	ctx := context.Background()

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("NewSQLiteDB failed: %v", err)
	}
	d := testDisaster("keep", models.DisasterTypeVolcano, models.SeverityHigh, time.Now().UTC())
	if err := db.UpsertDisaster(ctx, d); err != nil {
		t.Fatalf("UpsertDisaster failed: %v", err)
	}
	db.Close()

	db, err = NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	active, err := db.LoadActiveDisasters(ctx)
	if err != nil {
		t.Fatalf("LoadActiveDisasters failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != d.ID {
		t.Errorf("expected %s after reopen, got %v", d.ID, active)
	}
}

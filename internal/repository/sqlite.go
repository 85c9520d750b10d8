package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/credio/credio-alerts/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

var (
	_ DisasterRepository = (*SQLiteDB)(nil)
	_ LocationRepository = (*SQLiteDB)(nil)
)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS disasters (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severity INTEGER NOT NULL,
			status TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			radius_km REAL NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			magnitude REAL,
			report_url TEXT,
			started_at INTEGER NOT NULL,
			version INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_locations (
			user_id TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			captured_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_disasters_status ON disasters(status);
		CREATE INDEX IF NOT EXISTS idx_disasters_started_at ON disasters(started_at);
		CREATE INDEX IF NOT EXISTS idx_disasters_type ON disasters(type);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

const disasterColumns = `id, source, external_id, type, severity, status, latitude, longitude, radius_km,
	title, description, magnitude, report_url, started_at, version, last_seen_at, updated_at`

func (s *SQLiteDB) UpsertDisaster(ctx context.Context, d *models.Disaster) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disasters (`+disasterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			severity = excluded.severity,
			status = excluded.status,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_km = excluded.radius_km,
			title = excluded.title,
			description = excluded.description,
			magnitude = excluded.magnitude,
			report_url = excluded.report_url,
			started_at = excluded.started_at,
			version = excluded.version,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		d.ID, d.Source, d.ExternalID, d.Type.String(), int(d.Severity), string(d.Status),
		d.Latitude, d.Longitude, d.RadiusKm,
		d.Title, d.Description, d.Magnitude, d.ReportURL,
		toNanos(d.StartedAt), d.Version, toNanos(d.LastSeenAt), toNanos(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error upserting disaster %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Disaster, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+disasterColumns+` FROM disasters WHERE id = ?`, id)
	d, err := scanDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("disaster %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting disaster %s: %w", id, err)
	}
	return &d, nil
}

func (s *SQLiteDB) LoadActiveDisasters(ctx context.Context) ([]models.Disaster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+disasterColumns+` FROM disasters WHERE status != ? ORDER BY id`,
		string(models.StatusResolved),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading active disasters: %w", err)
	}
	return collectDisasters(rows)
}

func (s *SQLiteDB) ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, toNanos(*opts.Since))
	}
	if opts.Type != nil {
		where = append(where, "type = ?")
		args = append(args, opts.Type.String())
	}
	if opts.MinSeverity != nil {
		where = append(where, "severity >= ?")
		args = append(args, int(*opts.MinSeverity))
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}

	query := `SELECT ` + disasterColumns + ` FROM disasters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}
	return collectDisasters(rows)
}

func (s *SQLiteDB) SaveUserLocation(ctx context.Context, loc models.UserLocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_locations (user_id, latitude, longitude, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			captured_at = excluded.captured_at
		WHERE excluded.captured_at >= user_locations.captured_at`,
		loc.UserID, loc.Point.Latitude, loc.Point.Longitude, toNanos(loc.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving location for %s: %w", loc.UserID, err)
	}
	return nil
}

func (s *SQLiteDB) LoadUserLastLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	var (
		loc      models.UserLocation
		captured int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, latitude, longitude, captured_at FROM user_locations WHERE user_id = ?`, userID,
	).Scan(&loc.UserID, &loc.Point.Latitude, &loc.Point.Longitude, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading location for %s: %w", userID, err)
	}
	loc.CapturedAt = fromNanos(captured)
	return &loc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDisaster(row scanner) (models.Disaster, error) {
	var (
		d                            models.Disaster
		typ, status                  string
		severity                     int
		description, reportURL       sql.NullString
		magnitude                    sql.NullFloat64
		startedAt, lastSeen, updated int64
	)
	err := row.Scan(
		&d.ID, &d.Source, &d.ExternalID, &typ, &severity, &status,
		&d.Latitude, &d.Longitude, &d.RadiusKm,
		&d.Title, &description, &magnitude, &reportURL,
		&startedAt, &d.Version, &lastSeen, &updated,
	)
	if err != nil {
		return models.Disaster{}, err
	}

	d.Type = models.ParseDisasterType(typ)
	d.Severity = models.Severity(severity)
	d.Status = models.Status(status)
	d.Description = description.String
	d.Magnitude = magnitude.Float64
	d.ReportURL = reportURL.String
	d.StartedAt = fromNanos(startedAt)
	d.LastSeenAt = fromNanos(lastSeen)
	d.UpdatedAt = fromNanos(updated)
	return d, nil
}

func collectDisasters(rows *sql.Rows) ([]models.Disaster, error) {
	defer rows.Close()

	var out []models.Disaster
	for rows.Next() {
		d, err := scanDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating disasters: %w", err)
	}
	return out, nil
}

// Timestamps are stored as unix nanoseconds; 0 means unset.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

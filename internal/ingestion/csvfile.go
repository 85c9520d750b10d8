package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

// CSVFileSource imports events from a local CSV file with the header
//
//	id,type,severity,status,latitude,longitude,radius_km,title,description,started_at
//
// Only id, type, latitude and longitude are required. started_at is RFC 3339.
type CSVFileSource struct {
	path   string
	logger *slog.Logger
}

func NewCSVFileSource(path string, logger *slog.Logger) *CSVFileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVFileSource{path: path, logger: logger}
}

func (s *CSVFileSource) Name() string { return "csv" }

func (s *CSVFileSource) Path() string { return s.path }

func (s *CSVFileSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("error opening csv source: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	col := columnIndex(header)
	for _, name := range []string{"id", "type", "latitude", "longitude"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv source missing column %q", name)
		}
	}

	var records []RawRecord
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading csv line %d: %w", line, err)
		}

		rec, err := s.parseRow(row, col)
		if err != nil {
			s.logger.Warn("skipping csv row", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *CSVFileSource) parseRow(row []string, col map[string]int) (RawRecord, error) {
	lat, err := strconv.ParseFloat(field(row, col, "latitude"), 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(field(row, col, "longitude"), 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("longitude: %w", err)
	}

	rec := RawRecord{
		Source:      s.Name(),
		ExternalID:  field(row, col, "id"),
		Type:        models.ParseDisasterType(field(row, col, "type")),
		Point:       geo.Point{Latitude: lat, Longitude: lon},
		Title:       field(row, col, "title"),
		Description: field(row, col, "description"),
	}

	if v := field(row, col, "severity"); v != "" {
		if rec.Severity, err = models.ParseSeverity(v); err != nil {
			return RawRecord{}, err
		}
	}
	if v := field(row, col, "status"); v != "" {
		if rec.Status, err = models.ParseStatus(v); err != nil {
			return RawRecord{}, err
		}
	}
	if v := field(row, col, "radius_km"); v != "" {
		if rec.RadiusKm, err = strconv.ParseFloat(v, 64); err != nil {
			return RawRecord{}, fmt.Errorf("radius_km: %w", err)
		}
	}
	if v := field(row, col, "started_at"); v != "" {
		if rec.StartedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return RawRecord{}, fmt.Errorf("started_at: %w", err)
		}
	}
	return rec, nil
}

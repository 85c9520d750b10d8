package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

const (
	firmsProduct = "VIIRS_SNPP_NRT"
	firmsArea    = "world"
	firmsDays    = 1
	firmsRadius  = 10
)

// FIRMSSource reads NASA FIRMS active fire hotspots. Hotspots are clustered
// by grid cell and acquisition date so one fire front becomes one event.
type FIRMSSource struct {
	baseURL string
	mapKey  string
	fetcher *HTTPFetcher
	logger  *slog.Logger
}

func NewFIRMSSource(baseURL, mapKey string, fetcher *HTTPFetcher, logger *slog.Logger) *FIRMSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FIRMSSource{baseURL: strings.TrimRight(baseURL, "/"), mapKey: mapKey, fetcher: fetcher, logger: logger}
}

func (s *FIRMSSource) Name() string { return "firms" }

func (s *FIRMSSource) url() string {
	return fmt.Sprintf("%s/%s/%s/%s/%d", s.baseURL, s.mapKey, firmsProduct, firmsArea, firmsDays)
}

type hotspot struct {
	point   geo.Point
	frp     float64
	date    string
	started time.Time
}

func (s *FIRMSSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	body, err := s.fetcher.Get(ctx, s.url(), "text/csv")
	if err != nil {
		return nil, err
	}

	hotspots, err := parseFIRMS(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	type clusterKey struct {
		cell geo.Cell
		date string
	}
	clusters := make(map[clusterKey]*hotspot)
	for i := range hotspots {
		h := hotspots[i]
		key := clusterKey{cell: geo.CellOf(h.point), date: h.date}
		if cur, ok := clusters[key]; !ok || h.frp > cur.frp {
			clusters[key] = &h
		}
	}

	records := make([]RawRecord, 0, len(clusters))
	for key, h := range clusters {
		records = append(records, RawRecord{
			Source:     s.Name(),
			ExternalID: fmt.Sprintf("%s_%d_%d", key.date, key.cell.X, key.cell.Y),
			Type:       models.DisasterTypeWildfire,
			Severity:   frpSeverity(h.frp),
			Status:     models.StatusActive,
			Point:      h.point,
			RadiusKm:   firmsRadius,
			Title:      fmt.Sprintf("Active fire detected (%.1f MW)", h.frp),
			Magnitude:  h.frp,
			StartedAt:  h.started,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ExternalID < records[j].ExternalID })

	s.logger.Debug("firms hotspots clustered", "hotspots", len(hotspots), "events", len(records))
	return records, nil
}

func parseFIRMS(r io.Reader) ([]hotspot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading firms header: %w", err)
	}
	col := columnIndex(header)
	for _, name := range []string{"latitude", "longitude", "frp", "acq_date"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("firms csv missing column %q", name)
		}
	}

	var out []hotspot
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading firms row: %w", err)
		}

		if lowConfidence(field(row, col, "confidence")) {
			continue
		}
		lat, err1 := strconv.ParseFloat(field(row, col, "latitude"), 64)
		lon, err2 := strconv.ParseFloat(field(row, col, "longitude"), 64)
		frp, err3 := strconv.ParseFloat(field(row, col, "frp"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		p := geo.Point{Latitude: lat, Longitude: lon}
		if !p.Valid() {
			continue
		}

		date := field(row, col, "acq_date")
		hhmm, _ := strconv.Atoi(field(row, col, "acq_time"))
		started, _ := time.Parse("2006-01-02 1504", fmt.Sprintf("%s %04d", date, hhmm))
		out = append(out, hotspot{point: p, frp: frp, date: date, started: started})
	}
	return out, nil
}

// lowConfidence accepts both VIIRS (l/n/h) and MODIS (0-100) confidence.
func lowConfidence(c string) bool {
	c = strings.ToLower(strings.TrimSpace(c))
	switch c {
	case "":
		return false
	case "l", "low":
		return true
	case "n", "nominal", "h", "high":
		return false
	}
	if v, err := strconv.Atoi(c); err == nil {
		return v < 30
	}
	return false
}

func frpSeverity(frp float64) models.Severity {
	switch {
	case frp >= 200:
		return models.SeverityCritical
	case frp >= 50:
		return models.SeverityHigh
	case frp >= 10:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

func serveFeed(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(1000, "credio-alerts-test")
}

const usgsFeed = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "us7000abcd",
      "properties": {"mag": 6.2, "place": "12 km S of Somewhere", "time": 1772366400000,
        "title": "M 6.2 - 12 km S of Somewhere", "url": "https://earthquake.usgs.gov/x", "type": "earthquake", "tsunami": 1},
      "geometry": {"coordinates": [77.0, 12.0, 10.0]}
    },
    {
      "id": "uu123",
      "properties": {"mag": 2.1, "type": "quarry blast"},
      "geometry": {"coordinates": [-111.0, 40.0, 0.0]}
    },
    {
      "id": "nc999",
      "properties": {"mag": 3.1, "type": "earthquake"},
      "geometry": {"coordinates": []}
    }
  ]
}`

func TestUSGSSource_Fetch(t *testing.T) {
	srv := serveFeed(t, "application/geo+json", usgsFeed)
	src := NewUSGSSource(srv.URL, testFetcher(), nil)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "usgs", r.Source)
	assert.Equal(t, "us7000abcd", r.ExternalID)
	assert.Equal(t, models.SeverityHigh, r.Severity)
	assert.Equal(t, 200.0, r.RadiusKm)
	assert.Equal(t, geo.Point{Latitude: 12, Longitude: 77}, r.Point)
	assert.Contains(t, r.Description, "Tsunami")
	assert.Equal(t, int64(1772366400000), r.StartedAt.UnixMilli())
}

func TestUSGSSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewUSGSSource(srv.URL, testFetcher(), nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestMagnitudeSeverity(t *testing.T) {
	tests := []struct {
		mag  float64
		want models.Severity
	}{
		{2.5, models.SeverityLow},
		{4.0, models.SeverityMedium},
		{5.5, models.SeverityHigh},
		{7.1, models.SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, magnitudeSeverity(tt.mag), "mag %v", tt.mag)
	}
}

const gdacsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:gdacs="http://www.gdacs.org" xmlns:georss="http://www.georss.org/georss">
<channel>
  <item>
    <title>Red alert for tropical cyclone AMIHAN</title>
    <description>Category 4 storm approaching the coast.</description>
    <link>https://www.gdacs.org/report.aspx?eventid=1001</link>
    <pubDate>Sun, 01 Mar 2026 10:00:00 GMT</pubDate>
    <georss:point>14.5 121.0</georss:point>
    <gdacs:eventtype>TC</gdacs:eventtype>
    <gdacs:alertlevel>Red</gdacs:alertlevel>
    <gdacs:eventid>1001</gdacs:eventid>
    <gdacs:iscurrent>true</gdacs:iscurrent>
    <gdacs:severity unit="km/h" value="215">Category 4 (maximum wind speed of 215 km/h)</gdacs:severity>
  </item>
  <item>
    <title>Green alert for flood</title>
    <georss:point>-6.2 106.8</georss:point>
    <gdacs:eventtype>FL</gdacs:eventtype>
    <gdacs:alertlevel>Green</gdacs:alertlevel>
    <gdacs:eventid>2002</gdacs:eventid>
    <gdacs:iscurrent>false</gdacs:iscurrent>
  </item>
  <item>
    <title>No location</title>
    <gdacs:eventtype>EQ</gdacs:eventtype>
    <gdacs:eventid>3003</gdacs:eventid>
  </item>
</channel>
</rss>`

func TestGDACSSource_Fetch(t *testing.T) {
	srv := serveFeed(t, "application/rss+xml", gdacsFeed)
	src := NewGDACSSource(srv.URL, testFetcher(), nil)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	tc := records[0]
	assert.Equal(t, "TC1001", tc.ExternalID)
	assert.Equal(t, models.DisasterTypeCyclone, tc.Type)
	assert.Equal(t, models.SeverityCritical, tc.Severity)
	assert.Equal(t, models.StatusActive, tc.Status)
	assert.Equal(t, geo.Point{Latitude: 14.5, Longitude: 121.0}, tc.Point)
	assert.Equal(t, 215.0, tc.Magnitude)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), tc.StartedAt.UTC())

	fl := records[1]
	assert.Equal(t, models.DisasterTypeFlood, fl.Type)
	assert.Equal(t, models.SeverityLow, fl.Severity)
	assert.Equal(t, models.StatusResolved, fl.Status)
}

func TestParseGeoRSSPoint(t *testing.T) {
	p, ok := parseGeoRSSPoint(" 10.5   -20.25 ")
	assert.True(t, ok)
	assert.Equal(t, geo.Point{Latitude: 10.5, Longitude: -20.25}, p)

	for _, bad := range []string{"", "10.5", "a b", "95 10"} {
		_, ok := parseGeoRSSPoint(bad)
		assert.False(t, ok, bad)
	}
}

const noaaFeed = `{
  "features": [
    {
      "properties": {
        "id": "urn:oid:2.49.0.1.840.0.aaa", "event": "Flash Flood Warning", "severity": "Severe",
        "messageType": "Alert", "headline": "Flash Flood Warning issued", "description": "Move to higher ground.",
        "effective": "2026-03-01T11:00:00Z", "expires": "2026-03-01T18:00:00Z"
      },
      "geometry": {"type": "Polygon", "coordinates": [[[-90.0, 30.0], [-89.0, 30.0], [-89.0, 31.0], [-90.0, 31.0], [-90.0, 30.0]]]}
    },
    {
      "properties": {
        "id": "urn:oid:2.49.0.1.840.0.bbb", "event": "Heat Advisory", "severity": "Moderate",
        "messageType": "Alert", "expires": "2026-03-01T09:00:00Z", "areaDesc": "Coastal Plains"
      },
      "geometry": {"type": "Polygon", "coordinates": [[[-97.0, 28.0], [-96.99, 28.0], [-96.99, 28.01], [-97.0, 28.0]]]}
    },
    {
      "properties": {"id": "urn:oid:2.49.0.1.840.0.ccc", "event": "Winter Storm Watch", "severity": "Moderate"},
      "geometry": null
    }
  ]
}`

func TestNOAASource_Fetch(t *testing.T) {
	srv := serveFeed(t, "application/geo+json", noaaFeed)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	src := NewNOAASource(srv.URL, testFetcher(), clock, nil)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	ff := records[0]
	assert.Equal(t, models.DisasterTypeFlood, ff.Type)
	assert.Equal(t, models.SeverityHigh, ff.Severity)
	assert.Equal(t, models.StatusActive, ff.Status)
	assert.InDelta(t, 30.4, ff.Point.Latitude, 0.001)
	assert.InDelta(t, -89.6, ff.Point.Longitude, 0.001)
	assert.Greater(t, ff.RadiusKm, 50.0)
	assert.Equal(t, "Flash Flood Warning issued", ff.Title)

	heat := records[1]
	assert.Equal(t, models.DisasterTypeHeatwave, heat.Type)
	assert.Equal(t, models.StatusResolved, heat.Status, "expired alerts are resolved")
	assert.Equal(t, float64(minAlertRadiusKm), heat.RadiusKm)
	assert.Equal(t, "Heat Advisory for Coastal Plains", heat.Title)
}

func TestMapNOAAEvent(t *testing.T) {
	assert.Equal(t, models.DisasterTypeCyclone, mapNOAAEvent("Hurricane Warning"))
	assert.Equal(t, models.DisasterTypeStorm, mapNOAAEvent("Tornado Warning"))
	assert.Equal(t, models.DisasterTypeWildfire, mapNOAAEvent("Red Flag Warning - Fire Weather"))
	assert.Equal(t, models.DisasterTypeTsunami, mapNOAAEvent("Tsunami Warning"))
	assert.Equal(t, models.DisasterTypeUnknown, mapNOAAEvent("Special Weather Statement"))
}

const firmsFeed = `latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight
12.01,77.01,330.1,0.4,0.4,2026-03-01,612,N,VIIRS,n,2.0NRT,290.2,12.5,D
12.02,77.03,340.5,0.4,0.4,2026-03-01,612,N,VIIRS,h,2.0NRT,295.0,75.0,D
12.03,77.04,300.0,0.4,0.4,2026-03-01,612,N,VIIRS,l,2.0NRT,280.0,500.0,D
-33.5,150.3,360.0,0.4,0.4,2026-03-01,1345,N,VIIRS,h,2.0NRT,300.0,250.0,N
`

func TestFIRMSSource_Fetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(firmsFeed))
	}))
	defer srv.Close()

	src := NewFIRMSSource(srv.URL+"/api/area/csv/", "KEY123", testFetcher(), nil)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/area/csv/KEY123/VIIRS_SNPP_NRT/world/1", gotPath)

	// the two confident Bengaluru hotspots share a cell, the low confidence one is dropped
	require.Len(t, records, 2)
	byID := map[string]RawRecord{}
	for _, r := range records {
		byID[r.ExternalID] = r
	}

	blr := byID["2026-03-01_2570_1020"]
	assert.Equal(t, 75.0, blr.Magnitude)
	assert.Equal(t, models.SeverityHigh, blr.Severity)
	assert.Equal(t, models.DisasterTypeWildfire, blr.Type)
	assert.Equal(t, time.Date(2026, 3, 1, 6, 12, 0, 0, time.UTC), blr.StartedAt)

	for _, r := range records {
		if r.Point.Latitude < 0 {
			assert.Equal(t, models.SeverityCritical, r.Severity)
		}
	}
}

func TestFRPSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityLow, frpSeverity(5))
	assert.Equal(t, models.SeverityMedium, frpSeverity(10))
	assert.Equal(t, models.SeverityHigh, frpSeverity(199))
	assert.Equal(t, models.SeverityCritical, frpSeverity(200))
}

func TestCSVFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	content := "id,type,severity,status,latitude,longitude,radius_km,title,description,started_at\n" +
		"evt-1,earthquake,high,active,12.0,77.0,50,Test quake,Shaking,2026-03-01T10:00:00Z\n" +
		"evt-2,flood,,,19.07,72.87,,,,\n" +
		"evt-3,flood,apocalyptic,,19.07,72.87,,,,\n" +
		"evt-4,storm,low,,not-a-number,72.87,,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	src := NewCSVFileSource(path, nil)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "csv", records[0].Source)
	assert.Equal(t, models.DisasterTypeEarthquake, records[0].Type)
	assert.Equal(t, models.SeverityHigh, records[0].Severity)
	assert.Equal(t, models.StatusActive, records[0].Status)
	assert.Equal(t, 50.0, records[0].RadiusKm)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), records[0].StartedAt)

	d, err := records[1].Normalize()
	require.NoError(t, err)
	assert.Equal(t, models.SeverityLow, d.Severity)
	assert.Equal(t, models.StatusActive, d.Status)
	assert.Equal(t, "csv_evt-2", d.ID)
}

func TestCSVFileSource_MissingFile(t *testing.T) {
	_, err := NewCSVFileSource(filepath.Join(t.TempDir(), "nope.csv"), nil).Fetch(context.Background())
	assert.Error(t, err)
}

func TestSimulatedSource(t *testing.T) {
	src := NewSimulatedSource(0.2)

	_, err := src.WithRand(func() float64 { return 0.1 }).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSimulatedOutage)

	records, err := src.WithRand(func() float64 { return 0.5 }).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sim-1", records[0].ExternalID)
	for _, r := range records {
		_, err := r.Normalize()
		assert.NoError(t, err)
	}
}

func TestNormalize(t *testing.T) {
	d, err := RawRecord{
		Source:     "usgs",
		ExternalID: "abc",
		Type:       models.DisasterTypeVolcano,
		Point:      geo.Point{Latitude: 1, Longitude: 2},
	}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "usgs_abc", d.ID)
	assert.Equal(t, 30.0, d.RadiusKm)
	assert.Equal(t, models.StatusActive, d.Status)
	assert.Equal(t, models.SeverityLow, d.Severity)
	assert.Equal(t, "volcano reported by usgs", d.Title)

	d, err = RawRecord{Source: "x", ExternalID: "y", Point: geo.Point{}}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, float64(fallbackRadiusKm), d.RadiusKm)

	_, err = RawRecord{Source: "x", ExternalID: " "}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second}
	assert.Equal(t, time.Second, b.NextDelay(0))
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 4*time.Second, b.NextDelay(2))

	capped := ExponentialBackoff{Initial: time.Second, Max: 3 * time.Second}
	assert.Equal(t, 3*time.Second, capped.NextDelay(5))
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	r := NewRetrier(3, 0, clockwork.NewFakeClock(), nil)
	calls := 0
	cause := errors.New("boom")

	err := r.Do(context.Background(), "src", func(context.Context) error {
		calls++
		return cause
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, cause)
}

func TestRetrier_StopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRetrier(3, time.Minute, clock, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, "src", func(context.Context) error { return errors.New("boom") })
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchFile_TriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("id\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, testLogger(), func() { changed <- struct{}{} })
	}()

	// writes before the watch is registered are missed, so keep writing
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("id\nx\n"), 0o644)
		select {
		case <-changed:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	// other files in the directory are ignored
	time.Sleep(100 * time.Millisecond)
	for len(changed) > 0 {
		<-changed
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	select {
	case <-changed:
		t.Fatal("unexpected callback for unrelated file")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

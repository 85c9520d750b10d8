package risk

import (
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

// Engine computes on-demand risk assessments. It holds no state besides
// the clock, so a single instance can be shared across goroutines.
type Engine struct {
	clock clockwork.Clock
}

func NewEngine(clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock}
}

// Assess scores loc against the given events. A nil location yields SAFE.
func (e *Engine) Assess(loc *geo.Point, disasters []models.Disaster) models.RiskAssessment {
	assessment := models.RiskAssessment{
		Level:      models.RiskSafe,
		Disasters:  []models.AffectingDisaster{},
		AssessedAt: e.now(),
	}

	if loc == nil {
		assessment.Recommendations = []string{recEnableLocation}
		return assessment
	}

	type hit struct {
		d        *models.Disaster
		distance float64
	}
	var hits []hit
	for i := range disasters {
		d := &disasters[i]
		if !d.IsActive() {
			continue
		}
		dist := geo.DistanceKm(*loc, d.Center())
		if dist <= d.RadiusKm {
			hits = append(hits, hit{d: d, distance: dist})
		}
	}

	if len(hits) == 0 {
		assessment.Recommendations = []string{recStayInformed}
		return assessment
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.d.Severity != b.d.Severity {
			return a.d.Severity > b.d.Severity
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.d.ID < b.d.ID
	})

	top := hits[0].d.Severity
	assessment.Level = models.RiskLevelFor(top)

	seen := make(map[string]struct{})
	for _, h := range hits {
		assessment.Disasters = append(assessment.Disasters, models.AffectingDisaster{
			Disaster:   h.d.Summary(),
			DistanceKm: h.distance,
			Impact:     models.ImpactFor(h.distance, h.d.RadiusKm),
		})

		if h.d.Severity != top {
			continue
		}
		for _, rec := range For(h.d.Type) {
			if _, dup := seen[rec]; dup {
				continue
			}
			seen[rec] = struct{}{}
			assessment.Recommendations = append(assessment.Recommendations, rec)
		}
	}

	return assessment
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// Package catalog holds the in-memory set of known disaster events keyed by
// (source, external id). Mutations are two-phase: Plan computes the next
// state without touching the set, Commit installs it once it is durable.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/credio/credio-alerts/internal/models"
)

type Change int

const (
	ChangeNone Change = iota // seen again, nothing material changed
	ChangeCreated
	ChangeUpdated
)

func (c Change) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Candidate is a planned mutation. It can only be committed on top of the
// version it was planned against.
type Candidate struct {
	Disaster models.Disaster
	Change   Change
	base     int64
}

// Publishable reports whether a change of this kind reaches subscribers.
func (c Change) Publishable() bool {
	return c != ChangeNone
}

// Publishable reports whether the candidate should reach subscribers.
func (c Candidate) Publishable() bool {
	return c.Change.Publishable()
}

type Catalog struct {
	mu     sync.RWMutex
	events map[string]*models.Disaster
}

func New() *Catalog {
	return &Catalog{
		events: make(map[string]*models.Disaster),
	}
}

// Load seeds the catalog, typically from the repository at startup.
func (c *Catalog) Load(ds []models.Disaster) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range ds {
		d := ds[i]
		c.events[d.ID] = &d
	}
}

// Restore reinstates a persisted event that is not in memory, for example
// one pruned after it resolved. It returns false if the id is already known.
func (c *Catalog) Restore(d models.Disaster) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.events[d.ID]; ok {
		return false
	}
	c.events[d.ID] = &d
	return true
}

// Plan merges a normalized record into the current state of its event.
// New ids start at version 1; material changes bump the version; anything
// else only refreshes LastSeenAt.
func (c *Catalog) Plan(rec models.Disaster, now time.Time) Candidate {
	if rec.ID == "" {
		rec.ID = models.DisasterID(rec.Source, rec.ExternalID)
	}

	c.mu.RLock()
	cur, ok := c.events[rec.ID]
	var existing models.Disaster
	if ok {
		existing = *cur
	}
	c.mu.RUnlock()

	if !ok {
		rec.Version = 1
		rec.LastSeenAt = now
		rec.UpdatedAt = now
		if rec.StartedAt.IsZero() {
			rec.StartedAt = now
		}
		return Candidate{Disaster: rec, Change: ChangeCreated}
	}

	next := existing
	next.LastSeenAt = now
	if !materiallyEqual(&existing, &rec) {
		next.Type = rec.Type
		next.Severity = rec.Severity
		next.Status = rec.Status
		next.Latitude = rec.Latitude
		next.Longitude = rec.Longitude
		next.RadiusKm = rec.RadiusKm
		next.Title = rec.Title
		next.Description = rec.Description
		next.Magnitude = rec.Magnitude
		next.ReportURL = rec.ReportURL
		next.Version = existing.Version + 1
		next.UpdatedAt = now
		return Candidate{Disaster: next, Change: ChangeUpdated, base: existing.Version}
	}
	return Candidate{Disaster: next, Change: ChangeNone, base: existing.Version}
}

// PlanResolve plans the RESOLVED transition of an event. It returns false
// when the event is unknown or already resolved.
func (c *Catalog) PlanResolve(id string, now time.Time) (Candidate, bool) {
	c.mu.RLock()
	cur, ok := c.events[id]
	var existing models.Disaster
	if ok {
		existing = *cur
	}
	c.mu.RUnlock()

	if !ok || existing.Status == models.StatusResolved {
		return Candidate{}, false
	}

	next := existing
	next.Status = models.StatusResolved
	next.Version = existing.Version + 1
	next.UpdatedAt = now
	return Candidate{Disaster: next, Change: ChangeUpdated, base: existing.Version}, true
}

// Commit installs a planned candidate. It returns false if the event moved
// on since the candidate was planned.
func (c *Catalog) Commit(cand Candidate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.events[cand.Disaster.ID]
	switch {
	case cand.Change == ChangeCreated && ok:
		return false
	case cand.Change != ChangeCreated && (!ok || cur.Version != cand.base):
		return false
	}

	d := cand.Disaster
	c.events[d.ID] = &d
	return true
}

func (c *Catalog) Get(id string) (models.Disaster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.events[id]
	if !ok {
		return models.Disaster{}, false
	}
	return *d, true
}

// Active returns copies of every ACTIVE event ordered by id.
func (c *Catalog) Active() []models.Disaster {
	return c.filter(func(d *models.Disaster) bool { return d.IsActive() })
}

// All returns copies of every tracked event ordered by id.
func (c *Catalog) All() []models.Disaster {
	return c.filter(func(*models.Disaster) bool { return true })
}

// Stale returns the ids of ACTIVE and MONITORING events no feed has
// reported since cutoff.
func (c *Catalog) Stale(cutoff time.Time) []string {
	var ids []string
	for _, d := range c.filter(func(d *models.Disaster) bool {
		return d.Status != models.StatusResolved && d.LastSeenAt.Before(cutoff)
	}) {
		ids = append(ids, d.ID)
	}
	return ids
}

// Prune forgets RESOLVED events last updated before cutoff and returns how
// many were removed.
func (c *Catalog) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, d := range c.events {
		if d.Status == models.StatusResolved && d.UpdatedAt.Before(cutoff) {
			delete(c.events, id)
			n++
		}
	}
	return n
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func (c *Catalog) filter(keep func(*models.Disaster) bool) []models.Disaster {
	c.mu.RLock()
	out := make([]models.Disaster, 0, len(c.events))
	for _, d := range c.events {
		if keep(d) {
			out = append(out, *d)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func materiallyEqual(a, b *models.Disaster) bool {
	return a.Type == b.Type &&
		a.Severity == b.Severity &&
		a.Status == b.Status &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude &&
		a.RadiusKm == b.RadiusKm &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.Magnitude == b.Magnitude &&
		a.ReportURL == b.ReportURL
}

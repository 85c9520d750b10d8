// Package subscription tracks which live connections care about which
// disasters, either explicitly by id or implicitly by location.
package subscription

import (
	"sort"
	"sync"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/models"
)

type Stats struct {
	Connections         int `json:"connections"`
	DisasterSubscribers int `json:"disasterSubscribers"`
	LocatedConnections  int `json:"locatedConnections"`
}

type locationInterest struct {
	point geo.Point
	cell  geo.Cell
}

// Registry is safe for concurrent use. One instance is created at startup
// and shared by the gateway session handler and the dispatcher.
type Registry struct {
	mu sync.RWMutex

	byDisaster map[string]map[string]struct{} // disaster id -> conn ids
	byConn     map[string]map[string]struct{} // conn id -> disaster ids
	locations  map[string]locationInterest    // conn id -> last location
	byCell     map[geo.Cell]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byDisaster: make(map[string]map[string]struct{}),
		byConn:     make(map[string]map[string]struct{}),
		locations:  make(map[string]locationInterest),
		byCell:     make(map[geo.Cell]map[string]struct{}),
	}
}

func (r *Registry) SubscribeToDisaster(connID, disasterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addTo(r.byDisaster, disasterID, connID)
	addTo(r.byConn, connID, disasterID)
}

func (r *Registry) UnsubscribeFromDisaster(connID, disasterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removeFrom(r.byDisaster, disasterID, connID)
	removeFrom(r.byConn, connID, disasterID)
}

// UpdateLocationInterest replaces the connection's last known location.
func (r *Registry) UpdateLocationInterest(connID string, p geo.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.locations[connID]; ok {
		removeFrom(r.byCell, prev.cell, connID)
	}
	li := locationInterest{point: p, cell: geo.CellOf(p)}
	r.locations[connID] = li
	addTo(r.byCell, li.cell, connID)
}

func (r *Registry) LastLocation(connID string) (geo.Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	li, ok := r.locations[connID]
	return li.point, ok
}

// ResolveInterestedConnections returns the sorted union of connections
// subscribed to d by id and connections whose last location lies within
// d's radius.
func (r *Registry) ResolveInterestedConnections(d *models.Disaster) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for connID := range r.byDisaster[d.ID] {
		set[connID] = struct{}{}
	}

	center := d.Center()
	inRange := func(connID string) {
		if _, ok := set[connID]; ok {
			return
		}
		li, ok := r.locations[connID]
		if ok && geo.IsWithinRadius(li.point, center, d.RadiusKm) {
			set[connID] = struct{}{}
		}
	}

	cells, all := geo.CellsWithinRadius(center, d.RadiusKm)
	if all || len(cells) > len(r.byCell) {
		for connID := range r.locations {
			inRange(connID)
		}
	} else {
		for _, cell := range cells {
			for connID := range r.byCell[cell] {
				inRange(connID)
			}
		}
	}

	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

// OnDisconnect drops every interest held by connID. Calling it for an
// unknown connection is a no-op.
func (r *Registry) OnDisconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for disasterID := range r.byConn[connID] {
		removeFrom(r.byDisaster, disasterID, connID)
	}
	delete(r.byConn, connID)

	if li, ok := r.locations[connID]; ok {
		removeFrom(r.byCell, li.cell, connID)
		delete(r.locations, connID)
	}
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make(map[string]struct{}, len(r.byConn)+len(r.locations))
	for connID := range r.byConn {
		conns[connID] = struct{}{}
	}
	for connID := range r.locations {
		conns[connID] = struct{}{}
	}

	return Stats{
		Connections:         len(conns),
		DisasterSubscribers: len(r.byConn),
		LocatedConnections:  len(r.locations),
	}
}

func addTo[K comparable](m map[K]map[string]struct{}, key K, member string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[member] = struct{}{}
}

func removeFrom[K comparable](m map[K]map[string]struct{}, key K, member string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(m, key)
	}
}

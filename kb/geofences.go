package kb

import (
	"sync"

	"github.com/signalsfoundry/geofence-simulator/model"
)

// GeofenceRegistry holds the active polygons in insertion order. Polygons
// are only ever appended or cleared all at once.
type GeofenceRegistry struct {
	mu       sync.RWMutex
	polygons []model.Polygon
	subs     subscribers
}

// NewGeofenceRegistry constructs an empty registry.
func NewGeofenceRegistry() *GeofenceRegistry {
	return &GeofenceRegistry{}
}

// Add appends p. Names are not deduplicated.
func (r *GeofenceRegistry) Add(p model.Polygon) {
	stored := p.Clone()

	r.mu.Lock()
	r.polygons = append(r.polygons, stored)
	evCopy := stored.Clone()
	event := Event{Type: EventPolygonAdded, Polygon: &evCopy}
	subs := r.subs.snapshot()
	r.mu.Unlock()

	notify(subs, event)
}

// Clear removes every polygon. Clearing an empty registry is a no-op apart
// from the event.
func (r *GeofenceRegistry) Clear() {
	r.mu.Lock()
	r.polygons = nil
	subs := r.subs.snapshot()
	r.mu.Unlock()

	notify(subs, Event{Type: EventPolygonsCleared})
}

// List returns a deep copy of the polygons in insertion order.
func (r *GeofenceRegistry) List() []model.Polygon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Polygon, len(r.polygons))
	for i, p := range r.polygons {
		out[i] = p.Clone()
	}
	return out
}

// Len returns the number of active polygons.
func (r *GeofenceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.polygons)
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *GeofenceRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.subs.add(fn)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs.fns, id)
	}
}

// Package geofence manages named polygon boundaries and answers
// containment queries against them.
package geofence

import (
	"context"
	"sort"
	"strings"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/geomath"
	"github.com/kass/go-geo-registry/pkg/identity"
	"github.com/kass/go-geo-registry/pkg/models"
	"github.com/kass/go-geo-registry/pkg/registry"
)

// MaxEntries is the hard ceiling for EntriesWithin results
const MaxEntries = 500

// Manager validates, stores and queries geofences
type Manager struct {
	reg *registry.Registry
	ids identity.Resolver
}

// Option configures a Manager
type Option func(*Manager)

// WithIdentity sets the resolver used to attribute fence ownership
func WithIdentity(r identity.Resolver) Option {
	return func(m *Manager) { m.ids = r }
}

// New creates a geofence manager backed by reg
func New(reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{reg: reg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates and stores a new geofence. The ring must be closed
// (first vertex equal to last), have at least 4 vertices and not
// self-intersect.
func (m *Manager) Create(ctx context.Context, name string, ring []models.Point, description string, metadata map[string]string, credential string) (*models.Geofence, error) {
	if strings.TrimSpace(name) == "" {
		return nil, geoerr.New(geoerr.KindInvalidInput, "geofence name must not be empty")
	}
	if err := geomath.ValidateRing(ring); err != nil {
		return nil, err
	}

	fence := &models.Geofence{
		Name:        name,
		Description: description,
		Polygon:     append([]models.Point(nil), ring...),
		Metadata:    metadata,
		OwnerID:     identity.Owner(ctx, m.ids, credential),
	}
	fence, err := m.reg.AddFence(fence)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindStorageFailure, "failed to store geofence", err)
	}
	return fence, nil
}

// Check returns every geofence whose polygon contains p. An empty result
// means the point is outside all fences, not an error.
func (m *Manager) Check(p models.Point) ([]*models.Geofence, error) {
	if err := geomath.ValidateCoordinate(p); err != nil {
		return nil, err
	}

	var hits []*models.Geofence
	for _, fence := range m.reg.Fences() {
		if !geomath.RingBounds(fence.Polygon).Contains(p) {
			continue
		}
		if geomath.ContainsPoint(fence.Polygon, p) {
			hits = append(hits, fence)
		}
	}
	return hits, nil
}

// EntriesWithin returns up to maxResults records contained by the named
// fence's polygon, in insertion order
func (m *Manager) EntriesWithin(fenceID string, maxResults int) ([]*models.GeoRecord, error) {
	if maxResults <= 0 || maxResults > MaxEntries {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "max results must be in [1, %d], got %d", MaxEntries, maxResults)
	}
	fence, ok := m.reg.FenceByID(fenceID)
	if !ok {
		return nil, geoerr.Newf(geoerr.KindNotFound, "geofence %q does not exist", fenceID)
	}

	box := geomath.RingBounds(fence.Polygon)
	var entries []*models.GeoRecord
	for _, rec := range m.reg.Snapshot() {
		if !box.Contains(rec.Coordinates) {
			continue
		}
		if geomath.ContainsPoint(fence.Polygon, rec.Coordinates) {
			entries = append(entries, rec)
			if len(entries) == maxResults {
				break
			}
		}
	}
	return entries, nil
}

// List returns all geofences ordered by creation time, newest first
func (m *Manager) List() []*models.Geofence {
	fences := m.reg.Fences()
	out := append([]*models.Geofence(nil), fences...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

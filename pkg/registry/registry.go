// Package registry owns the canonical in-memory collection of GeoRecords
// and Geofences. Records are indexed in an R-Tree for sub-linear spatial
// queries. Writers are serialized; readers run concurrently against
// consistent snapshots.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/geomath"
	"github.com/kass/go-geo-registry/pkg/models"
)

const (
	tolerance   = 0.01
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialItem wraps a GeoRecord for R-Tree indexing
type spatialItem struct {
	rec  *models.GeoRecord
	rect *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect {
	return si.rect
}

// Registry is a thread-safe spatial collection of records and geofences.
// Records and fences are immutable once inserted; the record slice is
// append-only, so a prefix of it is a stable snapshot.
type Registry struct {
	mu        sync.RWMutex
	tree      *rtreego.Rtree
	records   []*models.GeoRecord
	fences    []*models.Geofence
	fenceByID map[string]*models.Geofence
	count     atomic.Int64
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		tree:      rtreego.NewTree(dimensions, minChildren, maxChildren),
		fenceByID: make(map[string]*models.Geofence),
	}
}

// Insert adds a record to the registry, assigning an id and creation time
// when absent. The record is visible to queries as soon as Insert returns.
func (r *Registry) Insert(rec *models.GeoRecord) (*models.GeoRecord, error) {
	if rec == nil {
		return nil, geoerr.New(geoerr.KindInvalidInput, "record must not be nil")
	}
	if err := geomath.ValidateCoordinate(rec.Coordinates); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(rec)
	return rec, nil
}

// InsertMany adds a batch of records as a single atomic unit: either all
// records are validated and inserted, or none are. Returns the number
// inserted.
func (r *Registry) InsertMany(recs []*models.GeoRecord) (int, error) {
	for _, rec := range recs {
		if rec == nil {
			return 0, geoerr.New(geoerr.KindInvalidInput, "record must not be nil")
		}
		if err := geomath.ValidateCoordinate(rec.Coordinates); err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.insertLocked(rec)
	}
	return len(recs), nil
}

func (r *Registry) insertLocked(rec *models.GeoRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rtPoint := rtreego.Point{rec.Coordinates.Lat, rec.Coordinates.Lon}
	r.records = append(r.records, rec)
	r.tree.Insert(&spatialItem{rec: rec, rect: rtPoint.ToRect(tolerance)})
	r.count.Add(1)
}

// Snapshot returns a fixed view of the records as of the call, in
// insertion order. Concurrent inserts do not affect a returned snapshot.
func (r *Registry) Snapshot() []*models.GeoRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[:len(r.records):len(r.records)]
}

// QueryBox returns all records within the given bounding box,
// in insertion order
func (r *Registry) QueryBox(box models.BoundingBox) ([]*models.GeoRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bounds, err := rtreego.NewRect(
		rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon},
		[]float64{box.TopRight.Lat - box.BottomLeft.Lat, box.TopRight.Lon - box.BottomLeft.Lon},
	)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.KindInvalidInput, "invalid bounding box", err)
	}

	results := r.tree.SearchIntersect(bounds)

	// The index rects carry a tolerance margin; re-check exact bounds
	recs := make([]*models.GeoRecord, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok || item.rec == nil {
			continue
		}
		if box.Contains(item.rec.Coordinates) {
			recs = append(recs, item.rec)
		}
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

// Query returns all records matching pred, in insertion order
func (r *Registry) Query(pred func(*models.GeoRecord) bool) []*models.GeoRecord {
	snap := r.Snapshot()
	var recs []*models.GeoRecord
	for _, rec := range snap {
		if pred(rec) {
			recs = append(recs, rec)
		}
	}
	return recs
}

// NearestNeighbors returns the n records closest to p
func (r *Registry) NearestNeighbors(p models.Point, n int) []*models.GeoRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := r.tree.NearestNeighbors(n, rtreego.Point{p.Lat, p.Lon})
	recs := make([]*models.GeoRecord, 0, len(results))
	for _, result := range results {
		if item, ok := result.(*spatialItem); ok && item.rec != nil {
			recs = append(recs, item.rec)
		}
	}
	return recs
}

// Len returns the number of records in the registry
func (r *Registry) Len() int64 {
	return r.count.Load()
}

// Clear removes all records and geofences
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	r.records = nil
	r.fences = nil
	r.fenceByID = make(map[string]*models.Geofence)
	r.count.Store(0)
}

// AddFence stores a validated geofence, assigning an id and creation time
// when absent. Geometry validation is the caller's responsibility.
func (r *Registry) AddFence(f *models.Geofence) (*models.Geofence, error) {
	if f == nil {
		return nil, geoerr.New(geoerr.KindInvalidInput, "geofence must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	r.fences = append(r.fences, f)
	r.fenceByID[f.ID] = f
	return f, nil
}

// Fences returns all geofences in insertion order
func (r *Registry) Fences() []*models.Geofence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fences[:len(r.fences):len(r.fences)]
}

// FenceByID looks up a geofence by id
func (r *Registry) FenceByID(id string) (*models.Geofence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fenceByID[id]
	return f, ok
}

package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/models"
)

func record(lat, lon float64, formatted string) *models.GeoRecord {
	return &models.GeoRecord{
		RawInput:    formatted,
		Address:     models.StandardizedAddress{Formatted: formatted},
		Coordinates: models.Point{Lat: lat, Lon: lon},
	}
}

func TestInsertVisibility(t *testing.T) {
	reg := New()

	rec, err := reg.Insert(record(47.9184, 106.9177, "Sukhbaatar Square"))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, int64(1), reg.Len())

	// Immediately visible to queries
	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, rec.ID, snap[0].ID)
}

func TestInsertRejectsBadCoordinates(t *testing.T) {
	reg := New()

	_, err := reg.Insert(record(95, 0, "nowhere"))
	assert.True(t, geoerr.IsKind(err, geoerr.KindCoordinateOutOfRange))
	assert.Equal(t, int64(0), reg.Len())
}

func TestInsertMany(t *testing.T) {
	reg := New()

	recs := []*models.GeoRecord{
		record(47.91, 106.90, "a"),
		record(47.92, 106.91, "b"),
		record(47.93, 106.92, "c"),
	}
	n, err := reg.InsertMany(recs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), reg.Len())
}

func TestInsertManyAtomicValidation(t *testing.T) {
	reg := New()

	recs := []*models.GeoRecord{
		record(47.91, 106.90, "good"),
		record(47.92, 200.0, "bad"),
	}
	n, err := reg.InsertMany(recs)
	assert.True(t, geoerr.IsKind(err, geoerr.KindCoordinateOutOfRange))
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(0), reg.Len())
}

func TestSnapshotIsolation(t *testing.T) {
	reg := New()
	_, err := reg.Insert(record(47.91, 106.90, "first"))
	require.NoError(t, err)

	snap := reg.Snapshot()

	_, err = reg.Insert(record(47.92, 106.91, "second"))
	require.NoError(t, err)

	assert.Len(t, snap, 1)
	assert.Len(t, reg.Snapshot(), 2)
}

func TestQueryBox(t *testing.T) {
	reg := New()

	cities := []*models.GeoRecord{
		record(40.7128, -74.0060, "New York"),
		record(51.5074, -0.1278, "London"),
		record(48.8566, 2.3522, "Paris"),
		record(35.6762, 139.6503, "Tokyo"),
	}
	_, err := reg.InsertMany(cities)
	require.NoError(t, err)

	// Box around Europe
	results, err := reg.QueryBox(models.BoundingBox{
		BottomLeft: models.Point{Lat: 45.0, Lon: -5.0},
		TopRight:   models.Point{Lat: 55.0, Lon: 10.0},
	})
	require.NoError(t, err)

	require.Len(t, results, 2)
	names := []string{results[0].Address.Formatted, results[1].Address.Formatted}
	assert.Contains(t, names, "London")
	assert.Contains(t, names, "Paris")
}

func TestQueryPredicate(t *testing.T) {
	reg := New()

	a := record(47.91, 106.90, "a")
	a.Source = "import"
	b := record(47.92, 106.91, "b")
	b.Source = "user_input"
	_, err := reg.InsertMany([]*models.GeoRecord{a, b})
	require.NoError(t, err)

	results := reg.Query(func(rec *models.GeoRecord) bool {
		return rec.Source == "user_input"
	})
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Address.Formatted)
}

func TestNearestNeighbors(t *testing.T) {
	reg := New()

	for i := 0; i < 10; i++ {
		_, err := reg.Insert(record(float64(i), float64(i), fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
	}

	recs := reg.NearestNeighbors(models.Point{Lat: 4.4, Lon: 4.4}, 3)
	require.Len(t, recs, 3)
	assert.Equal(t, "p4", recs[0].Address.Formatted)
}

func TestFences(t *testing.T) {
	reg := New()

	f, err := reg.AddFence(&models.Geofence{Name: "downtown"})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.False(t, f.CreatedAt.IsZero())

	got, ok := reg.FenceByID(f.ID)
	require.True(t, ok)
	assert.Equal(t, "downtown", got.Name)

	_, ok = reg.FenceByID("missing")
	assert.False(t, ok)

	assert.Len(t, reg.Fences(), 1)
}

func TestPersistenceRoundTrip(t *testing.T) {
	reg := New()

	_, err := reg.Insert(record(47.9184, 106.9177, "Sukhbaatar Square"))
	require.NoError(t, err)
	_, err = reg.AddFence(&models.Geofence{
		Name: "square",
		Polygon: []models.Point{
			{Lat: 47.91, Lon: 106.90}, {Lat: 47.91, Lon: 106.93},
			{Lat: 47.93, Lon: 106.93}, {Lat: 47.93, Lon: 106.90},
			{Lat: 47.91, Lon: 106.90},
		},
	})
	require.NoError(t, err)

	path := t.TempDir() + "/registry.gob"
	require.NoError(t, reg.SaveToFile(path))

	loaded := New()
	require.NoError(t, loaded.LoadFromFile(path))

	assert.Equal(t, int64(1), loaded.Len())
	require.Len(t, loaded.Snapshot(), 1)
	assert.Equal(t, "Sukhbaatar Square", loaded.Snapshot()[0].Address.Formatted)
	require.Len(t, loaded.Fences(), 1)
	assert.Equal(t, "square", loaded.Fences()[0].Name)
}

func TestConcurrentInsertAndRead(t *testing.T) {
	reg := New()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := reg.Insert(record(
					float64(w), float64(i)/10, fmt.Sprintf("w%d-%d", w, i)))
				if err != nil {
					t.Errorf("insert failed: %v", err)
					return
				}
				_ = reg.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(800), reg.Len())
	assert.Len(t, reg.Snapshot(), 800)
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/models"
	"github.com/kass/go-geo-registry/pkg/registry"
)

var center = models.Point{Lat: 47.9184, Lon: 106.9177}

func record(lat, lon float64, formatted string, confidence float64) *models.GeoRecord {
	return &models.GeoRecord{
		RawInput:        formatted,
		Address:         models.StandardizedAddress{Formatted: formatted},
		Coordinates:     models.Point{Lat: lat, Lon: lon},
		ConfidenceScore: confidence,
	}
}

func engineWith(t *testing.T, recs ...*models.GeoRecord) *Engine {
	t.Helper()
	reg := registry.New()
	for _, rec := range recs {
		_, err := reg.Insert(rec)
		require.NoError(t, err)
	}
	return New(reg)
}

func TestRadiusSearchFiltersByDistance(t *testing.T) {
	// ~4000m and ~6000m north of the center
	engine := engineWith(t,
		record(center.Lat+0.0359, center.Lon, "near", 1.0),
		record(center.Lat+0.0540, center.Lon, "far", 1.0),
	)

	matches, err := engine.RadiusSearch(center, 5000, 20)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].Record.Address.Formatted)
	assert.InDelta(t, 4000, matches[0].DistanceMeters, 100)
}

func TestRadiusSearchOrdering(t *testing.T) {
	// Inserted out of distance order
	engine := engineWith(t,
		record(center.Lat+0.020, center.Lon, "third", 1.0),
		record(center.Lat+0.005, center.Lon, "first", 1.0),
		record(center.Lat+0.010, center.Lon, "second", 1.0),
	)

	matches, err := engine.RadiusSearch(center, 5000, 20)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "first", matches[0].Record.Address.Formatted)
	assert.Equal(t, "second", matches[1].Record.Address.Formatted)
	assert.Equal(t, "third", matches[2].Record.Address.Formatted)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].DistanceMeters, matches[i].DistanceMeters)
	}
	for _, m := range matches {
		assert.LessOrEqual(t, m.DistanceMeters, 5000.0)
	}
}

func TestRadiusSearchTiesKeepInsertionOrder(t *testing.T) {
	// Equidistant east and west
	engine := engineWith(t,
		record(center.Lat, center.Lon+0.01, "east", 1.0),
		record(center.Lat, center.Lon-0.01, "west", 1.0),
	)

	matches, err := engine.RadiusSearch(center, 5000, 20)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "east", matches[0].Record.Address.Formatted)
	assert.Equal(t, "west", matches[1].Record.Address.Formatted)
}

func TestRadiusSearchTruncates(t *testing.T) {
	recs := make([]*models.GeoRecord, 10)
	for i := range recs {
		recs[i] = record(center.Lat+float64(i)*0.001, center.Lon, "p", 1.0)
	}
	engine := engineWith(t, recs...)

	matches, err := engine.RadiusSearch(center, 5000, 4)
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestRadiusSearchValidation(t *testing.T) {
	engine := engineWith(t)

	_, err := engine.RadiusSearch(models.Point{Lat: 95, Lon: 0}, 1000, 10)
	assert.True(t, geoerr.IsKind(err, geoerr.KindCoordinateOutOfRange))

	_, err = engine.RadiusSearch(center, 0, 10)
	assert.True(t, geoerr.IsKind(err, geoerr.KindInvalidInput))

	_, err = engine.RadiusSearch(center, 50001, 10)
	assert.True(t, geoerr.IsKind(err, geoerr.KindInvalidInput))

	_, err = engine.RadiusSearch(center, 1000, 0)
	assert.True(t, geoerr.IsKind(err, geoerr.KindInvalidInput))

	_, err = engine.RadiusSearch(center, 1000, 101)
	assert.True(t, geoerr.IsKind(err, geoerr.KindInvalidInput))
}

func BenchmarkRadiusSearch(b *testing.B) {
	reg := registry.New()
	for i := 0; i < 100000; i++ {
		lat := 40 + float64(i%1000)*0.01
		lon := 100 + float64(i/1000)*0.01
		_, _ = reg.Insert(record(lat, lon, "p", 1.0))
	}
	engine := New(reg)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.RadiusSearch(models.Point{Lat: 45, Lon: 100.5}, 10000, 100)
	}
}

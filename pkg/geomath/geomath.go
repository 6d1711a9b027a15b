// Package geomath provides the geodesic distance, bounding-box and
// point-in-polygon primitives shared by the registry, query engine and
// geofence manager. Keeping the math here means the record store needs no
// spatial extension of its own.
package geomath

import (
	"math"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula
	EarthRadiusMeters = 6371000.0

	// MetersPerDegree is the meters-per-degree constant at the equator.
	// All meter-to-degree conversions in the system share this constant so
	// radius and eps parameters stay consistent across components.
	MetersPerDegree = 111320.0
)

// ValidateCoordinate checks that p is within valid latitude/longitude bounds
func ValidateCoordinate(p models.Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return geoerr.Newf(geoerr.KindCoordinateOutOfRange, "latitude %.6f out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return geoerr.Newf(geoerr.KindCoordinateOutOfRange, "longitude %.6f out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Distance calculates the great-circle distance between two points in meters
func Distance(a, b models.Point) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// BoundsAround returns a bounding box that fully covers the circle of
// radiusMeters around center, for use as a cheap prefilter before exact
// distance checks. Latitude bounds are clamped to the valid range.
func BoundsAround(center models.Point, radiusMeters float64) models.BoundingBox {
	dLat := radiusMeters / MetersPerDegree

	// Longitude degrees shrink with latitude; widen accordingly
	dLon := dLat
	if cos := math.Cos(center.Lat * math.Pi / 180.0); cos > 1e-9 {
		dLon = dLat / cos
	} else {
		dLon = 360
	}

	return models.BoundingBox{
		BottomLeft: models.Point{
			Lat: math.Max(center.Lat-dLat, -90),
			Lon: center.Lon - dLon,
		},
		TopRight: models.Point{
			Lat: math.Min(center.Lat+dLat, 90),
			Lon: center.Lon + dLon,
		},
	}
}

// ValidateRing checks that ring is a closed simple polygon: at least 4
// vertices, first vertex equal to the last, all coordinates in range and
// no two non-adjacent edges intersecting.
func ValidateRing(ring []models.Point) error {
	if len(ring) < 4 {
		return geoerr.Newf(geoerr.KindInvalidGeometry, "polygon ring needs at least 4 vertices, got %d", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		return geoerr.New(geoerr.KindInvalidGeometry, "polygon ring is not closed (first vertex must equal last)")
	}
	for _, p := range ring {
		if err := ValidateCoordinate(p); err != nil {
			return err
		}
	}

	// Edges i span ring[i] -> ring[i+1]; the ring is closed so the first
	// and last edges are adjacent through the shared closing vertex.
	n := len(ring) - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return geoerr.New(geoerr.KindInvalidGeometry, "polygon ring is self-intersecting")
			}
		}
	}
	return nil
}

// RingBounds returns the bounding box of a polygon ring
func RingBounds(ring []models.Point) models.BoundingBox {
	box := models.BoundingBox{
		BottomLeft: models.Point{Lat: 90, Lon: 180},
		TopRight:   models.Point{Lat: -90, Lon: -180},
	}
	for _, p := range ring {
		box.BottomLeft.Lat = math.Min(box.BottomLeft.Lat, p.Lat)
		box.BottomLeft.Lon = math.Min(box.BottomLeft.Lon, p.Lon)
		box.TopRight.Lat = math.Max(box.TopRight.Lat, p.Lat)
		box.TopRight.Lon = math.Max(box.TopRight.Lon, p.Lon)
	}
	return box
}

// ContainsPoint tests whether the closed ring contains p using even-odd
// ray casting. Points on the boundary are treated as contained.
func ContainsPoint(ring []models.Point, p models.Point) bool {
	n := len(ring) - 1
	if n < 3 {
		return false
	}

	// Boundary points count as inside
	for i := 0; i < n; i++ {
		if onSegment(ring[i], ring[i+1], p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		yi, xi := ring[i].Lat, ring[i].Lon
		yj, xj := ring[j].Lat, ring[j].Lon
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

const epsilon = 1e-12

// cross returns the 2D cross product of (b-a) x (c-a) in lon/lat space
func cross(a, b, c models.Point) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

// onSegment reports whether p lies on the segment a-b
func onSegment(a, b, p models.Point) bool {
	if math.Abs(cross(a, b, p)) > epsilon {
		return false
	}
	return p.Lon >= math.Min(a.Lon, b.Lon)-epsilon && p.Lon <= math.Max(a.Lon, b.Lon)+epsilon &&
		p.Lat >= math.Min(a.Lat, b.Lat)-epsilon && p.Lat <= math.Max(a.Lat, b.Lat)+epsilon
}

// segmentsIntersect reports whether segments a-b and c-d share any point
func segmentsIntersect(a, b, c, d models.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)

	if ((d1 > epsilon && d2 < -epsilon) || (d1 < -epsilon && d2 > epsilon)) &&
		((d3 > epsilon && d4 < -epsilon) || (d3 < -epsilon && d4 > epsilon)) {
		return true
	}

	// Collinear or touching cases
	return onSegment(c, d, a) || onSegment(c, d, b) ||
		onSegment(a, b, c) || onSegment(a, b, d)
}

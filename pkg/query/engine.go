// Package query answers radius-search and density-clustering queries over
// a registry snapshot. Queries never mutate the registry.
package query

import (
	"sort"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/geomath"
	"github.com/kass/go-geo-registry/pkg/models"
	"github.com/kass/go-geo-registry/pkg/registry"
)

// Hard input-validation ceilings
const (
	MaxRadiusMeters        = 50000.0
	MaxClusterRadiusMeters = 100000.0
	MaxResults             = 100
)

// Engine runs spatial queries against a registry
type Engine struct {
	reg *registry.Registry
}

// New creates a query engine over reg
func New(reg *registry.Registry) *Engine {
	return &Engine{reg: reg}
}

// Match pairs a record with its distance from the query center
type Match struct {
	Record         *models.GeoRecord `json:"record"`
	DistanceMeters float64           `json:"distance_meters"`
}

// RadiusSearch returns up to maxResults records within radiusMeters of
// center, ordered by ascending distance. Ties in distance keep insertion
// order.
func (e *Engine) RadiusSearch(center models.Point, radiusMeters float64, maxResults int) ([]Match, error) {
	if err := geomath.ValidateCoordinate(center); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 || radiusMeters > MaxRadiusMeters {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "radius must be in (0, %.0f] meters, got %.2f", MaxRadiusMeters, radiusMeters)
	}
	if maxResults <= 0 || maxResults > MaxResults {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "max results must be in [1, %d], got %d", MaxResults, maxResults)
	}

	matches := e.withinRadius(center, radiusMeters)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// withinRadius filters the registry snapshot with a bounding-box prefilter
// followed by exact distance checks, preserving insertion order
func (e *Engine) withinRadius(center models.Point, radiusMeters float64) []Match {
	box := geomath.BoundsAround(center, radiusMeters)

	var matches []Match
	for _, rec := range e.reg.Snapshot() {
		if !box.Contains(rec.Coordinates) {
			continue
		}
		dist := geomath.Distance(center, rec.Coordinates)
		if dist <= radiusMeters {
			matches = append(matches, Match{Record: rec, DistanceMeters: dist})
		}
	}
	return matches
}

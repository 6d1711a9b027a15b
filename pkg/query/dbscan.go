package query

import (
	"math"
	"sort"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/geomath"
	"github.com/kass/go-geo-registry/pkg/models"
)

// DBSCAN point labels
const (
	labelUnvisited = 0
	labelNoise     = -1
)

// ClusterByDensity runs DBSCAN over the records within radiusMeters of
// center. Neighborhoods use epsMeters converted to degree space; points
// with fewer than minPoints neighbors that belong to no dense cluster are
// dropped from the result. Clusters come back ordered by descending point
// count, and the run is deterministic for a fixed registry snapshot.
func (e *Engine) ClusterByDensity(center models.Point, radiusMeters, epsMeters float64, minPoints int) ([]models.Cluster, error) {
	if err := geomath.ValidateCoordinate(center); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 || radiusMeters > MaxClusterRadiusMeters {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "radius must be in (0, %.0f] meters, got %.2f", MaxClusterRadiusMeters, radiusMeters)
	}
	if epsMeters <= 0 || epsMeters > radiusMeters {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "eps must be in (0, radius] meters, got %.2f", epsMeters)
	}
	if minPoints < 1 {
		return nil, geoerr.Newf(geoerr.KindInvalidInput, "min points must be >= 1, got %d", minPoints)
	}

	matches := e.withinRadius(center, radiusMeters)
	eps := epsMeters / geomath.MetersPerDegree

	// Labels: 0 unvisited, -1 noise, >0 cluster id.
	// Seeding in insertion order keeps cluster membership deterministic.
	labels := make([]int, len(matches))
	nextID := 0
	for i := range matches {
		if labels[i] != labelUnvisited {
			continue
		}
		neighbors := regionQuery(matches, i, eps)
		if len(neighbors) < minPoints {
			labels[i] = labelNoise
			continue
		}
		nextID++
		expandCluster(matches, labels, i, neighbors, nextID, eps, minPoints)
	}

	return buildClusters(matches, labels, nextID), nil
}

// regionQuery returns the indexes of all points within eps of point i in
// degree space, including i itself
func regionQuery(matches []Match, i int, eps float64) []int {
	var neighbors []int
	pi := matches[i].Record.Coordinates
	for j := range matches {
		pj := matches[j].Record.Coordinates
		dLat := pi.Lat - pj.Lat
		dLon := pi.Lon - pj.Lon
		if math.Sqrt(dLat*dLat+dLon*dLon) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// expandCluster grows cluster id from seed point i outwards through all
// density-reachable points
func expandCluster(matches []Match, labels []int, i int, neighbors []int, id int, eps float64, minPoints int) {
	labels[i] = id
	for k := 0; k < len(neighbors); k++ {
		j := neighbors[k]
		if labels[j] == labelNoise {
			labels[j] = id
			continue
		}
		if labels[j] != labelUnvisited {
			continue
		}
		labels[j] = id
		further := regionQuery(matches, j, eps)
		if len(further) >= minPoints {
			neighbors = append(neighbors, further...)
		}
	}
}

func buildClusters(matches []Match, labels []int, numClusters int) []models.Cluster {
	clusters := make([]models.Cluster, 0, numClusters)
	for id := 1; id <= numClusters; id++ {
		var (
			sumLat, sumLon, sumConf float64
			members                 []string
			count                   int
		)
		for i := range matches {
			if labels[i] != id {
				continue
			}
			rec := matches[i].Record
			sumLat += rec.Coordinates.Lat
			sumLon += rec.Coordinates.Lon
			sumConf += rec.ConfidenceScore
			members = append(members, rec.Address.Formatted)
			count++
		}
		if count == 0 {
			continue
		}
		clusters = append(clusters, models.Cluster{
			ClusterID: id,
			Center: models.Point{
				Lat: sumLat / float64(count),
				Lon: sumLon / float64(count),
			},
			PointCount:      count,
			MemberAddresses: members,
			AvgConfidence:   round2(sumConf / float64(count)),
		})
	}

	// Largest clusters first; equal counts keep discovery order
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].PointCount > clusters[j].PointCount
	})
	return clusters
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

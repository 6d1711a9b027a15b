// Package geocode turns raw address and coordinate input into canonical,
// confidence-scored GeoRecords via an external geocoding provider.
package geocode

import (
	"context"

	"github.com/kass/go-geo-registry/pkg/models"
)

// Candidate is one geocoding result returned by a provider,
// best match first
type Candidate struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Address     models.StandardizedAddress
}

// Provider is an external geocoding service. Implementations map
// transport and non-2xx failures to ProviderUnavailable errors and an
// unresolvable reverse lookup to NoResultsFound.
type Provider interface {
	// Search resolves a free-text query to candidates ranked best-first.
	// An empty slice means the provider found nothing.
	Search(ctx context.Context, query string) ([]Candidate, error)

	// Reverse resolves coordinates to the closest known address
	Reverse(ctx context.Context, lat, lon float64) (*Candidate, error)
}

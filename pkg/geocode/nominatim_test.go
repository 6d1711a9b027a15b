package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-geo-registry/pkg/geoerr"
)

const searchBody = `[
	{
		"lat": "47.9184676",
		"lon": "106.9177016",
		"display_name": "Sukhbaatar Square, Ulaanbaatar, Mongolia",
		"address": {
			"road": "Sukhbaatar Square",
			"city": "Ulaanbaatar",
			"state": "Ulaanbaatar",
			"postcode": "14200",
			"country": "Mongolia",
			"country_code": "mn"
		}
	},
	{
		"lat": "40.0",
		"lon": "-75.0",
		"display_name": "somewhere else",
		"address": {}
	}
]`

func newTestProvider(handler http.HandlerFunc) (*NominatimProvider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	provider := NewNominatimProvider(ProviderConfig{
		BaseURL:   srv.URL,
		UserAgent: "go-geo-registry-test",
	})
	return provider, srv
}

func TestNominatimSearch(t *testing.T) {
	var gotPath, gotUA string
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(searchBody))
	})
	defer srv.Close()

	candidates, err := provider.Search(context.Background(), "Sukhbaatar Square, Ulaanbaatar")
	require.NoError(t, err)

	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "go-geo-registry-test", gotUA)

	require.Len(t, candidates, 2)
	top := candidates[0]
	assert.InDelta(t, 47.9184676, top.Lat, 1e-9)
	assert.InDelta(t, 106.9177016, top.Lon, 1e-9)
	assert.Equal(t, "Sukhbaatar Square", top.Address.Road)
	assert.Equal(t, "Ulaanbaatar", top.Address.City)
	assert.Equal(t, "Mongolia", top.Address.Country)
	assert.Equal(t, "mn", top.Address.CountryCode)
	assert.Equal(t, "Sukhbaatar Square, Ulaanbaatar, Mongolia", top.Address.Formatted)
}

func TestNominatimSearchEmpty(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	defer srv.Close()

	candidates, err := provider.Search(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestNominatimSearchCityFallback(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat": "49.0", "lon": "105.0", "display_name": "x", "address": {"town": "Zuunmod"}}]`))
	})
	defer srv.Close()

	candidates, err := provider.Search(context.Background(), "Zuunmod")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Zuunmod", candidates[0].Address.City)
}

func TestNominatimSearchServerError(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := provider.Search(context.Background(), "Ulaanbaatar")
	assert.True(t, geoerr.IsKind(err, geoerr.KindProviderUnavailable))
}

func TestNominatimSearchUnreachable(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := provider.Search(context.Background(), "Ulaanbaatar")
	assert.True(t, geoerr.IsKind(err, geoerr.KindProviderUnavailable))
}

func TestNominatimReverse(t *testing.T) {
	var gotPath string
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"lat": "47.92",
			"lon": "106.92",
			"display_name": "Peace Avenue, Ulaanbaatar, Mongolia",
			"address": {"road": "Peace Avenue", "city": "Ulaanbaatar", "country": "Mongolia"}
		}`))
	})
	defer srv.Close()

	candidate, err := provider.Reverse(context.Background(), 47.92, 106.92)
	require.NoError(t, err)

	assert.Equal(t, "/reverse", gotPath)
	require.NotNil(t, candidate)
	assert.Equal(t, "Peace Avenue", candidate.Address.Road)
	assert.Equal(t, "Ulaanbaatar", candidate.Address.City)
}

func TestNominatimReverseNotFound(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Unable to geocode"}`))
	})
	defer srv.Close()

	_, err := provider.Reverse(context.Background(), 0, 0)
	assert.True(t, geoerr.IsKind(err, geoerr.KindNoResultsFound))
}

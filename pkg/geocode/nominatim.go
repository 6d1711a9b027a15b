package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kass/go-geo-registry/pkg/geoerr"
	"github.com/kass/go-geo-registry/pkg/models"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// ProviderConfig defines settings for the Nominatim client
type ProviderConfig struct {
	BaseURL   string        // Defaults to the public Nominatim instance
	UserAgent string        // Required by the Nominatim usage policy
	Timeout   time.Duration // Per-request timeout, defaults to 10s
}

// NominatimProvider is a Provider backed by OSM Nominatim
type NominatimProvider struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewNominatimProvider creates a Nominatim-backed geocoding provider
func NewNominatimProvider(config ProviderConfig) *NominatimProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &NominatimProvider{
		baseURL:   config.BaseURL,
		userAgent: config.UserAgent,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// nominatimResult is the wire shape of one Nominatim result
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error,omitempty"`
	Address     struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (r nominatimResult) toCandidate() Candidate {
	// Nominatim reports the locality as city, town or village depending
	// on place size; fold them into one component
	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	if city == "" {
		city = r.Address.Village
	}

	lat, _ := strconv.ParseFloat(r.Lat, 64)
	lon, _ := strconv.ParseFloat(r.Lon, 64)

	return Candidate{
		Lat:         lat,
		Lon:         lon,
		DisplayName: r.DisplayName,
		Address: models.StandardizedAddress{
			HouseNumber: r.Address.HouseNumber,
			Road:        r.Address.Road,
			City:        city,
			State:       r.Address.State,
			Postcode:    r.Address.Postcode,
			Country:     r.Address.Country,
			CountryCode: r.Address.CountryCode,
			Formatted:   r.DisplayName,
		},
	}
}

// Search resolves a free-text query to ranked candidates
func (p *NominatimProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"5"},
	}

	var results []nominatimResult
	if err := p.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, r.toCandidate())
	}
	return candidates, nil
}

// Reverse resolves coordinates to the closest known address
func (p *NominatimProvider) Reverse(ctx context.Context, lat, lon float64) (*Candidate, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
	}

	var result nominatimResult
	if err := p.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, geoerr.Newf(geoerr.KindNoResultsFound, "no address at %.6f, %.6f", lat, lon)
	}

	candidate := result.toCandidate()
	return &candidate, nil
}

func (p *NominatimProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s%s?%s", p.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return geoerr.Wrap(geoerr.KindProviderUnavailable, "failed to build provider request", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return geoerr.Wrap(geoerr.KindProviderUnavailable, "provider request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geoerr.Newf(geoerr.KindProviderUnavailable, "provider returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return geoerr.Wrap(geoerr.KindProviderUnavailable, "failed to decode provider response", err)
	}
	return nil
}

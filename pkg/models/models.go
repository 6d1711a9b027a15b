package models

import "time"

// Point represents a geographic coordinate in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Point
	TopRight   Point
}

// Contains reports whether p falls inside the box, edges included
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.BottomLeft.Lat && p.Lat <= b.TopRight.Lat &&
		p.Lon >= b.BottomLeft.Lon && p.Lon <= b.TopRight.Lon
}

// StandardizedAddress holds the named components of a geocoded address.
// All components are optional; Formatted carries the provider's full-text form.
type StandardizedAddress struct {
	HouseNumber string `json:"house_number,omitempty"`
	Road        string `json:"road,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Formatted   string `json:"formatted"`
}

// FilledCount returns how many of the six scored components
// (house_number, road, city, state, postcode, country) are non-empty.
func (a StandardizedAddress) FilledCount() int {
	n := 0
	for _, f := range []string{a.HouseNumber, a.Road, a.City, a.State, a.Postcode, a.Country} {
		if f != "" {
			n++
		}
	}
	return n
}

// GeoRecord is the canonical persisted form of one geocoded input.
// Records are immutable after creation.
type GeoRecord struct {
	ID              string              `json:"id"`
	RawInput        string              `json:"raw_input"`
	Address         StandardizedAddress `json:"standardized_address"`
	Coordinates     Point               `json:"coordinates"`
	Source          string              `json:"source,omitempty"`
	ConfidenceScore float64             `json:"confidence_score"`
	OwnerID         *string             `json:"owner_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Geofence is a named closed polygon boundary used for containment queries.
// The ring is stored with the first vertex repeated as the last.
type Geofence struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Polygon     []Point           `json:"polygon"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OwnerID     *string           `json:"owner_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Cluster is a per-query result of density clustering. Cluster IDs are
// scoped to one query and carry no meaning across queries.
type Cluster struct {
	ClusterID       int      `json:"cluster_id"`
	Center          Point    `json:"center"`
	PointCount      int      `json:"point_count"`
	MemberAddresses []string `json:"member_addresses"`
	AvgConfidence   float64  `json:"avg_confidence"`
}

// Batch item outcome statuses
const (
	BatchStatusSuccess  = "success"
	BatchStatusNotFound = "not_found"
	BatchStatusError    = "error"
)

// BatchItem records the outcome of one address in a batch geocode
type BatchItem struct {
	Address string     `json:"address"`
	Status  string     `json:"status"`
	Record  *GeoRecord `json:"record,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// BatchResult summarizes a batch geocode run.
// Succeeded + NotFound + Failed always equals Total, and Inserted <= Succeeded.
type BatchResult struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	NotFound  int         `json:"not_found"`
	Failed    int         `json:"failed"`
	Inserted  int         `json:"inserted"`
	Items     []BatchItem `json:"items"`
}

// Package postgis implements the durable record store backing the
// spatial registry, using PostGIS for the index/scan primitives the
// query paths need.
package postgis

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kass/go-geo-registry/pkg/models"
)

type Store struct {
	db *sql.DB
}

// NewStore opens a PostGIS connection
func NewStore(host, user, password, dbname string, port int) (*Store, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// InitSchema creates the record and geofence tables
func (s *Store) InitSchema() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`CREATE TABLE IF NOT EXISTS geo_records (
			id TEXT PRIMARY KEY,
			raw_input TEXT NOT NULL,
			house_number TEXT,
			road TEXT,
			city TEXT,
			state TEXT,
			postcode TEXT,
			country TEXT,
			country_code TEXT,
			formatted TEXT,
			location GEOMETRY(POINT, 4326) NOT NULL,
			source TEXT,
			confidence DOUBLE PRECISION NOT NULL,
			owner_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS geofences (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			boundary GEOMETRY(POLYGON, 4326) NOT NULL,
			metadata JSONB,
			owner_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}

	return nil
}

// CreateSpatialIndexes creates GIST indexes on the geometry columns
func (s *Store) CreateSpatialIndexes() error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_geo_records_location ON geo_records USING GIST(location);`,
		`CREATE INDEX IF NOT EXISTS idx_geofences_boundary ON geofences USING GIST(boundary);`,
		`ANALYZE geo_records;`,
		`ANALYZE geofences;`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create spatial index: %w", err)
		}
	}
	return nil
}

const insertRecordSQL = `
	INSERT INTO geo_records (
		id, raw_input, house_number, road, city, state, postcode,
		country, country_code, formatted, location, source, confidence,
		owner_id, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		ST_SetSRID(ST_MakePoint($11, $12), 4326), $13, $14, $15, $16
	)
`

func recordArgs(rec *models.GeoRecord) []any {
	return []any{
		rec.ID, rec.RawInput,
		rec.Address.HouseNumber, rec.Address.Road, rec.Address.City,
		rec.Address.State, rec.Address.Postcode, rec.Address.Country,
		rec.Address.CountryCode, rec.Address.Formatted,
		rec.Coordinates.Lon, rec.Coordinates.Lat,
		rec.Source, rec.ConfidenceScore, rec.OwnerID, rec.CreatedAt,
	}
}

// InsertRecord stores a single record
func (s *Store) InsertRecord(rec *models.GeoRecord) error {
	if _, err := s.db.Exec(insertRecordSQL, recordArgs(rec)...); err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	return nil
}

// BulkInsertRecords inserts records in one transaction; it either commits
// all of them or none
func (s *Store) BulkInsertRecords(recs []*models.GeoRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertRecordSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(recordArgs(rec)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	return nil
}

const selectRecordSQL = `
	SELECT id, raw_input, house_number, road, city, state, postcode,
		country, country_code, formatted,
		ST_Y(location) AS lat, ST_X(location) AS lon,
		source, confidence, owner_id, created_at
	FROM geo_records
`

// QueryBox returns all records within the given bounding box
func (s *Store) QueryBox(box models.BoundingBox) ([]*models.GeoRecord, error) {
	query := selectRecordSQL + `
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY created_at
	`
	rows, err := s.db.Query(query,
		box.BottomLeft.Lon, box.BottomLeft.Lat,
		box.TopRight.Lon, box.TopRight.Lat)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// QueryRadius returns all records within radiusMeters of center,
// closest first
func (s *Store) QueryRadius(center models.Point, radiusMeters float64, limit int) ([]*models.GeoRecord, error) {
	query := selectRecordSQL + `
		WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY location::geography <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		LIMIT $4
	`
	rows, err := s.db.Query(query, center.Lon, center.Lat, radiusMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RecordsWithinFence returns records contained by the named fence's polygon
func (s *Store) RecordsWithinFence(fenceID string, limit int) ([]*models.GeoRecord, error) {
	query := selectRecordSQL + `
		WHERE ST_Covers((SELECT boundary FROM geofences WHERE id = $1), location)
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := s.db.Query(query, fenceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*models.GeoRecord, error) {
	var results []*models.GeoRecord
	for rows.Next() {
		rec := &models.GeoRecord{}
		var houseNumber, road, city, state, postcode, country, countryCode, formatted, source sql.NullString
		var ownerID sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.RawInput,
			&houseNumber, &road, &city, &state, &postcode,
			&country, &countryCode, &formatted,
			&rec.Coordinates.Lat, &rec.Coordinates.Lon,
			&source, &rec.ConfidenceScore, &ownerID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec.Address = models.StandardizedAddress{
			HouseNumber: houseNumber.String,
			Road:        road.String,
			City:        city.String,
			State:       state.String,
			Postcode:    postcode.String,
			Country:     country.String,
			CountryCode: countryCode.String,
			Formatted:   formatted.String,
		}
		rec.Source = source.String
		if ownerID.Valid {
			owner := ownerID.String
			rec.OwnerID = &owner
		}
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// InsertFence stores a geofence; the polygon ring is assumed validated
func (s *Store) InsertFence(fence *models.Geofence) error {
	meta, err := json.Marshal(fence.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO geofences (id, name, description, boundary, metadata, owner_id, created_at)
		VALUES ($1, $2, $3, ST_GeomFromText($4, 4326), $5, $6, $7)
	`
	if _, err := s.db.Exec(query,
		fence.ID, fence.Name, fence.Description,
		ringToWKT(fence.Polygon), meta, fence.OwnerID, fence.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert geofence %s: %w", fence.ID, err)
	}
	return nil
}

// Fences returns all geofences, newest first
func (s *Store) Fences() ([]*models.Geofence, error) {
	query := `
		SELECT id, name, description, ST_AsText(boundary), metadata, owner_id, created_at
		FROM geofences
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var results []*models.Geofence
	for rows.Next() {
		fence := &models.Geofence{}
		var description sql.NullString
		var wkt string
		var meta []byte
		var ownerID sql.NullString

		if err := rows.Scan(&fence.ID, &fence.Name, &description, &wkt, &meta, &ownerID, &fence.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		fence.Description = description.String
		if ownerID.Valid {
			owner := ownerID.String
			fence.OwnerID = &owner
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &fence.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		ring, err := ringFromWKT(wkt)
		if err != nil {
			return nil, err
		}
		fence.Polygon = ring
		results = append(results, fence)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Count returns the number of records in the store
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM geo_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ringToWKT renders a closed ring as a WKT polygon, lon before lat
func ringToWKT(ring []models.Point) string {
	var b strings.Builder
	b.WriteString("POLYGON((")
	for i, p := range ring {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%g %g", p.Lon, p.Lat)
	}
	b.WriteString("))")
	return b.String()
}

// ringFromWKT parses a single-ring WKT polygon
func ringFromWKT(wkt string) ([]models.Point, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(wkt), "POLYGON((")
	trimmed = strings.TrimSuffix(trimmed, "))")
	parts := strings.Split(trimmed, ",")

	ring := make([]models.Point, 0, len(parts))
	for _, part := range parts {
		var lon, lat float64
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%f %f", &lon, &lat); err != nil {
			return nil, fmt.Errorf("failed to parse polygon WKT %q: %w", wkt, err)
		}
		ring = append(ring, models.Point{Lat: lat, Lon: lon})
	}
	return ring, nil
}

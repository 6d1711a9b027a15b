package registry

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/kass/go-geo-registry/pkg/models"
)

// snapshotData is the serializable form of the registry
type snapshotData struct {
	Records []*models.GeoRecord
	Fences  []*models.Geofence
}

// SaveToFile saves the registry contents to a binary file
func (r *Registry) SaveToFile(filename string) error {
	r.mu.RLock()
	data := snapshotData{
		Records: r.records[:len(r.records):len(r.records)],
		Fences:  r.fences[:len(r.fences):len(r.fences)],
	}
	r.mu.RUnlock()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	return nil
}

// LoadFromFile replaces the registry contents with those from a binary file
func (r *Registry) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data snapshotData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode registry: %w", err)
	}

	r.Clear()
	if _, err := r.InsertMany(data.Records); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	for _, f := range data.Fences {
		if _, err := r.AddFence(f); err != nil {
			return fmt.Errorf("failed to restore geofence: %w", err)
		}
	}

	return nil
}

package util

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// ReadFeatureCollectionFromJSON loads a GeoJSON FeatureCollection from disk.
func ReadFeatureCollectionFromJSON(filePath string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filePath, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal FeatureCollection: %w", err)
	}
	return fc, nil
}

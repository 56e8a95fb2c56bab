package services

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// NearbyFeatureStore is the point-radius side of the overlay feature DAO.
type NearbyFeatureStore interface {
	GetNearbyFeatures(lat, lon, radiusKm float64) (*geojson.FeatureCollection, error)
}

// ErrInvalidQuery is wrapped by GetOverlaysNearby for out-of-range arguments.
var ErrInvalidQuery = errors.New("invalid overlay query")

type OverlayService struct {
	store NearbyFeatureStore
}

// NewOverlayService constructs a new OverlayService with Redis dependency injection.
func NewOverlayService(store NearbyFeatureStore) *OverlayService {
	return &OverlayService{store: store}
}

// GetOverlaysNearby returns the stored features anchored within radiusKm.
func (s *OverlayService) GetOverlaysNearby(lat, lon, radiusKm float64) (*geojson.FeatureCollection, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinate out of range: %f,%f", ErrInvalidQuery, lat, lon)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %f", ErrInvalidQuery, radiusKm)
	}
	return s.store.GetNearbyFeatures(lat, lon, radiusKm)
}

// Package overlay fetches regulatory overlay features for the viewports the
// coordinator asks for.
package overlay

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"overlay-server/models"
)

// Source returns the overlay features intersecting a bound.
type Source interface {
	FeaturesInBounds(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error)
}

// TileCache stores fetched snapshots by cache key. A miss is (nil, nil).
type TileCache interface {
	GetTileSnapshot(key string) (*geojson.FeatureCollection, error)
	SetTileSnapshot(key string, fc *geojson.FeatureCollection, ttl time.Duration) error
}

// LoadResult is one completed overlay load.
type LoadResult struct {
	Seq       uint64                     `json:"seq"`
	Tag       string                     `json:"tag"`
	Viewport  models.Viewport            `json:"viewport"`
	CacheKey  string                     `json:"cache_key"`
	Features  *geojson.FeatureCollection `json:"features"`
	FromCache bool                       `json:"from_cache"`
	LoadedAt  time.Time                  `json:"loaded_at"`
}

// Sink receives completed loads. Results can arrive out of order; Seq
// orders them.
type Sink interface {
	OverlaysLoaded(r LoadResult)
}

// FeatureStore is the lookup side of the overlay feature DAO.
type FeatureStore interface {
	GetFeaturesInBounds(b orb.Bound) (*geojson.FeatureCollection, error)
}

type storeSource struct {
	store FeatureStore
}

// NewStoreSource serves overlays from the local feature store.
func NewStoreSource(store FeatureStore) Source {
	return storeSource{store: store}
}

func (s storeSource) FeaturesInBounds(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GetFeaturesInBounds(b)
}

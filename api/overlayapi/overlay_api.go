package overlayapi

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// OverlayAPI defines the interface for fetching overlay features from a
// remote provider.
type OverlayAPI interface {
	FeaturesInBounds(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error)
	SetAPIKey(apiKey string)
}

package overlayapi

import (
	"context"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"overlay-server/util"
)

// OverlayApiClientMock serves features from a GeoJSON file on disk.
type OverlayApiClientMock struct {
	path string
}

// NewOverlayApiClientMock creates a mock reading features from path.
func NewOverlayApiClientMock(path string) *OverlayApiClientMock {
	return &OverlayApiClientMock{path: path}
}

func (c *OverlayApiClientMock) SetAPIKey(apiKey string) {}

// FeaturesInBounds re-reads the file on each call and keeps the features
// intersecting b.
func (c *OverlayApiClientMock) FeaturesInBounds(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := util.ReadFeatureCollectionFromJSON(c.path)
	if err != nil {
		log.Printf("[OverlayApiClientMock] Could not read features from %s: %v", c.path, err)
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range all.Features {
		if f.Geometry != nil && f.Geometry.Bound().Intersects(b) {
			fc.Append(f)
		}
	}
	return fc, nil
}

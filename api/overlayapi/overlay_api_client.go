package overlayapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"overlay-server/api"
)

const featuresEndpoint = "/overlays"

// OverlayApiClient embeds the common HTTPClient
type OverlayApiClient struct {
	*api.HTTPClient
	apiKey string
}

// NewOverlayApiClient creates a new instance of OverlayApiClient
func NewOverlayApiClient(httpClient *api.HTTPClient) *OverlayApiClient {
	return &OverlayApiClient{HTTPClient: httpClient}
}

func (c *OverlayApiClient) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// FeaturesInBounds asks the provider for every feature intersecting b.
// The bbox parameter follows GeoJSON order: minLon,minLat,maxLon,maxLat.
func (c *OverlayApiClient) FeaturesInBounds(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	q := url.Values{}
	q.Set("bbox", formatBBox(b))

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"X-Api-Key": c.apiKey}
	}

	fc := geojson.NewFeatureCollection()
	if err := c.RequestContext(ctx, "GET", featuresEndpoint+"?"+q.Encode(), headers, nil, fc); err != nil {
		return nil, fmt.Errorf("failed to fetch overlays for %s: %w", formatBBox(b), err)
	}
	return fc, nil
}

func formatBBox(b orb.Bound) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return f(b.Min.Lon()) + "," + f(b.Min.Lat()) + "," + f(b.Max.Lon()) + "," + f(b.Max.Lat())
}

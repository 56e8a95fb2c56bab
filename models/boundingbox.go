package models

type BoundingBox struct {
	Lat    float64 `json:"lat"`
	LatMax float64 `json:"lat_max"`
	LatMin float64 `json:"lat_min"`
	Lng    float64 `json:"lng"`
	LngMax float64 `json:"lng_max"`
	LngMin float64 `json:"lng_min"`
}

// BoundingBoxFromViewport expands a viewport into its corner extents.
func BoundingBoxFromViewport(v Viewport) BoundingBox {
	halfLat := v.Span.LatDelta / 2
	halfLon := v.Span.LonDelta / 2
	return BoundingBox{
		Lat:    v.Center.Lat,
		LatMax: v.Center.Lat + halfLat,
		LatMin: v.Center.Lat - halfLat,
		Lng:    v.Center.Lon,
		LngMax: v.Center.Lon + halfLon,
		LngMin: v.Center.Lon - halfLon,
	}
}

package models

import (
	"fmt"
	"time"
)

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Span is the angular size of a viewport. Both deltas are positive.
type Span struct {
	LatDelta float64 `json:"lat_delta"`
	LonDelta float64 `json:"lon_delta"`
}

// Viewport is the visible geographic rectangle of a map surface.
// It is a value: surfaces report a new one instead of mutating the old.
type Viewport struct {
	Center Coordinate `json:"center"`
	Span   Span       `json:"span"`
}

// Validate rejects viewports that cannot come from a real map surface.
func (v Viewport) Validate() error {
	if v.Center.Lat < -90 || v.Center.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", v.Center.Lat)
	}
	if v.Center.Lon < -180 || v.Center.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", v.Center.Lon)
	}
	if v.Span.LatDelta <= 0 || v.Span.LonDelta <= 0 {
		return fmt.Errorf("span must be positive, got %v x %v", v.Span.LatDelta, v.Span.LonDelta)
	}
	return nil
}

func (v Viewport) String() string {
	return fmt.Sprintf("(%.5f, %.5f) span %.4fx%.4f", v.Center.Lat, v.Center.Lon, v.Span.LatDelta, v.Span.LonDelta)
}

// LocationSample is one fix reported by the device location provider.
type LocationSample struct {
	Coordinate               Coordinate    `json:"coordinate"`
	HorizontalAccuracyMeters float64       `json:"horizontal_accuracy_m"`
	Age                      time.Duration `json:"age"`
}

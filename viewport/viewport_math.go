// Package viewport holds the pure geometry the overlay coordinator runs on:
// tile keys, the world-view guard and recenter targets. Nothing here keeps state.
package viewport

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"overlay-server/config"
	"overlay-server/models"
)

// TileKey identifies the overlay load target a viewport snaps to.
type TileKey string

// Steps returns the snapping step for each axis. The step is a little finer
// than the span so a full-screen pan always lands in a new tile.
func Steps(span models.Span) (latStep, lonStep float64) {
	latStep = math.Max(config.TILE_KEY_MIN_STEP_DEGREES, span.LatDelta*config.TILE_KEY_SHRINK)
	lonStep = math.Max(config.TILE_KEY_MIN_STEP_DEGREES, span.LonDelta*config.TILE_KEY_SHRINK)
	return latStep, lonStep
}

// TileKeyOf snaps the viewport center to its step grid and formats the result.
func TileKeyOf(v models.Viewport) TileKey {
	c := SnappedCenter(v)
	return TileKey(fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon))
}

// SnappedCenter is the grid point the viewport's tile key is derived from.
// Every viewport sharing a key lies within half a step of it on each axis.
func SnappedCenter(v models.Viewport) models.Coordinate {
	latStep, lonStep := Steps(v.Span)
	return models.Coordinate{Lat: snap(v.Center.Lat, latStep), Lon: snap(v.Center.Lon, lonStep)}
}

func snap(value, step float64) float64 {
	s := math.Round(value/step) * step
	if s == 0 {
		// drop the sign of -0 so both sides of zero share a key
		s = 0
	}
	return s
}

// IsTooWide reports whether the viewport is closer to a world view than a map
// of a place. Such viewports show up while the camera is still settling.
func IsTooWide(v models.Viewport, maxLatDelta, maxLonDelta float64) bool {
	return v.Span.LatDelta > maxLatDelta || v.Span.LonDelta > maxLonDelta
}

// BiasedRecenterTarget centers on point, shifted north by a fraction of the
// latitude span so the point ends up above the chrome covering the bottom of
// the screen.
func BiasedRecenterTarget(point models.Coordinate, span models.Span, verticalBiasFraction float64) models.Viewport {
	lat := point.Lat + span.LatDelta*verticalBiasFraction
	lat = math.Max(-90, math.Min(90, lat))
	return models.Viewport{
		Center: models.Coordinate{Lat: lat, Lon: point.Lon},
		Span:   span,
	}
}

// Bound converts the viewport into an orb bound (X is longitude).
func Bound(v models.Viewport) orb.Bound {
	bb := models.BoundingBoxFromViewport(v)
	return orb.Bound{
		Min: orb.Point{bb.LngMin, math.Max(-90, bb.LatMin)},
		Max: orb.Point{bb.LngMax, math.Min(90, bb.LatMax)},
	}
}

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(a, b models.Coordinate) float64 {
	return geo.Distance(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat})
}

package coordinator

import (
	"sync"
	"time"

	"overlay-server/clock"
	"overlay-server/models"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func vp(lat, lon float64) models.Viewport {
	return models.Viewport{
		Center: models.Coordinate{Lat: lat, Lon: lon},
		Span:   models.Span{LatDelta: 0.1, LonDelta: 0.1},
	}
}

func worldView() models.Viewport {
	return models.Viewport{
		Center: models.Coordinate{Lat: 0, Lon: 0},
		Span:   models.Span{LatDelta: 140, LonDelta: 300},
	}
}

var (
	berlin = vp(52.52, 13.405)
	paris  = vp(48.8566, 2.3522)
)

type load struct {
	viewport models.Viewport
	tag      string
}

type recordingLoader struct {
	mu    sync.Mutex
	loads []load
}

func (r *recordingLoader) RequestLoad(v models.Viewport, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, load{viewport: v, tag: tag})
}

func (r *recordingLoader) all() []load {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]load(nil), r.loads...)
}

func (r *recordingLoader) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = nil
}

func newTestCoordinator() (*OverlayLoadCoordinator, *clock.Manual, *recordingLoader) {
	clk := clock.NewManual(epoch)
	loader := &recordingLoader{}
	return NewOverlayLoadCoordinator(DefaultConfig(), clk, loader), clk, loader
}

// readyCoordinator returns a coordinator whose gate has opened on start and
// whose initial load has been cleared from the loader.
func readyCoordinator(start models.Viewport) (*OverlayLoadCoordinator, *clock.Manual, *recordingLoader) {
	c, clk, loader := newTestCoordinator()
	c.RenderCompleted()
	c.ViewportChanged(start)
	c.LocationUpdated(true, false)
	clk.Advance(DefaultConfig().RegionSettleDelay)
	loader.reset()
	return c, clk, loader
}

func accurateFix() models.LocationSample {
	return models.LocationSample{
		Coordinate:               models.Coordinate{Lat: 52.52, Lon: 13.405},
		HorizontalAccuracyMeters: 12,
		Age:                      time.Second,
	}
}

func sample(accuracyMeters float64, age time.Duration) models.LocationSample {
	s := accurateFix()
	s.HorizontalAccuracyMeters = accuracyMeters
	s.Age = age
	return s
}

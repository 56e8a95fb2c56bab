package coordinator

import (
	"log"

	"overlay-server/clock"
	"overlay-server/metrics"
	"overlay-server/models"
	"overlay-server/viewport"
)

// LoadRequest is a load the scheduler decided to issue.
type LoadRequest struct {
	Viewport models.Viewport
	Reason   Reason
	Key      viewport.TileKey
}

type pendingLoad struct {
	timer    clock.Timer
	viewport models.Viewport
	gen      uint64
}

// LoadScheduler turns viewport events into load requests. Pans are
// debounced behind a single cancel-and-replace timer; immediate reasons
// fire at once. A load is issued at most once per tile key unless the
// force-reload counter has moved since the last issued load.
type LoadScheduler struct {
	cfg   Config
	clock clock.Clock
	issue func(LoadRequest)

	lastKey viewport.TileKey
	hasLast bool

	pending *pendingLoad
	gen     uint64
	latest  models.Viewport

	forceTick       uint64
	issuedForceTick uint64
}

func NewLoadScheduler(cfg Config, clk clock.Clock, issue func(LoadRequest)) *LoadScheduler {
	return &LoadScheduler{cfg: cfg, clock: clk, issue: issue}
}

// OnViewportEvent routes one viewport event. It never blocks.
func (s *LoadScheduler) OnViewportEvent(v models.Viewport, reason Reason) {
	s.latest = v

	if viewport.IsTooWide(v, s.cfg.MaxLatDelta, s.cfg.MaxLonDelta) {
		log.Printf("[LoadScheduler] Dropping %s event, viewport too wide: %v", reason, v)
		metrics.EventsDroppedTotal.WithLabelValues("too_wide").Inc()
		return
	}
	key := viewport.TileKeyOf(v)

	if reason.Immediate() {
		s.CancelPending()
		forced := s.forceTick != s.issuedForceTick
		if s.hasLast && key == s.lastKey && !forced {
			log.Printf("[LoadScheduler] Dropping %s event, tile %s already loaded", reason, key)
			metrics.EventsDroppedTotal.WithLabelValues("duplicate_tile").Inc()
			return
		}
		s.issueLoad(v, reason, key)
		return
	}

	s.CancelPending()
	s.gen++
	gen := s.gen
	p := &pendingLoad{viewport: v, gen: gen}
	p.timer = s.clock.AfterFunc(s.cfg.PanDebounceDelay, func() { s.fire(gen) })
	s.pending = p
}

// fire runs when a debounce window closes. It checks the latest viewport,
// which may be newer than the one the timer was armed with.
func (s *LoadScheduler) fire(gen uint64) {
	if s.pending == nil || s.pending.gen != gen {
		return
	}
	s.pending = nil

	v := s.latest
	if viewport.IsTooWide(v, s.cfg.MaxLatDelta, s.cfg.MaxLonDelta) {
		log.Printf("[LoadScheduler] Debounced load dropped, viewport too wide: %v", v)
		metrics.EventsDroppedTotal.WithLabelValues("too_wide").Inc()
		return
	}
	key := viewport.TileKeyOf(v)
	if s.hasLast && key == s.lastKey {
		metrics.EventsDroppedTotal.WithLabelValues("duplicate_tile").Inc()
		return
	}
	s.issueLoad(v, ReasonPan, key)
}

func (s *LoadScheduler) issueLoad(v models.Viewport, reason Reason, key viewport.TileKey) {
	s.lastKey = key
	s.hasLast = true
	s.issuedForceTick = s.forceTick
	s.issue(LoadRequest{Viewport: v, Reason: reason, Key: key})
}

// CancelPending drops the debounced load, if any.
func (s *LoadScheduler) CancelPending() {
	if s.pending == nil {
		return
	}
	s.pending.timer.Stop()
	s.pending = nil
}

// BumpForceReload advances the force-reload counter so the next immediate
// event loads even when its tile matches the last one.
func (s *LoadScheduler) BumpForceReload() uint64 {
	s.forceTick++
	return s.forceTick
}

// LastTileKey returns the key of the last issued load.
func (s *LoadScheduler) LastTileKey() (viewport.TileKey, bool) {
	return s.lastKey, s.hasLast
}

// Package coordinator decides when a map surface should (re)load its
// regulatory overlays. It sits between the surface's viewport, render and
// location callbacks and an OverlayLoader that does the actual fetching.
package coordinator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"overlay-server/clock"
	"overlay-server/metrics"
	"overlay-server/models"
	"overlay-server/viewport"
)

// OverlayLoader fetches overlays for a viewport. RequestLoad must return
// without waiting for the fetch; retries and cancellation are its own job.
type OverlayLoader interface {
	RequestLoad(v models.Viewport, tag string)
}

type outgoingLoad struct {
	viewport models.Viewport
	tag      string
}

// OverlayLoadCoordinator is owned by one map surface. Public calls and timer
// callbacks are serialized; loads are handed to the loader after the
// internal lock is released.
type OverlayLoadCoordinator struct {
	mu     sync.Mutex
	cfg    Config
	clock  clock.Clock
	loader OverlayLoader

	gate      *ReadinessGate
	scheduler *LoadScheduler

	startedAt     time.Time
	accuracyTimer clock.Timer

	current    models.Viewport
	hasCurrent bool

	overlaysEnabled bool
	counter         uint64
	outbox          []outgoingLoad
	closed          bool
}

// NewOverlayLoadCoordinator starts a session: state NotReady, overlays
// enabled and the accuracy timeout armed.
func NewOverlayLoadCoordinator(cfg Config, clk clock.Clock, loader OverlayLoader) *OverlayLoadCoordinator {
	c := &OverlayLoadCoordinator{
		cfg:             cfg,
		clock:           clk,
		loader:          loader,
		startedAt:       clk.Now(),
		overlaysEnabled: true,
	}
	serial := serialClock{c: c}
	c.gate = NewReadinessGate(cfg, serial, c.onReady)
	c.scheduler = NewLoadScheduler(cfg, serial, c.enqueue)
	c.accuracyTimer = serial.AfterFunc(cfg.AccuracyTimeout, c.gate.OnAccuracyTimeout)
	return c
}

// serialClock runs timer callbacks under the coordinator lock.
type serialClock struct {
	c *OverlayLoadCoordinator
}

func (s serialClock) Now() time.Time { return s.c.clock.Now() }

func (s serialClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return s.c.clock.AfterFunc(d, func() { s.c.run(f) })
}

// run executes f under the lock, then flushes queued loads to the loader.
func (c *OverlayLoadCoordinator) run(f func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	f()
	out := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	for _, l := range out {
		c.loader.RequestLoad(l.viewport, l.tag)
	}
}

// ViewportChanged reports a new viewport from the rendering surface.
func (c *OverlayLoadCoordinator) ViewportChanged(v models.Viewport) {
	c.run(func() {
		c.current = v
		c.hasCurrent = true
		if c.gate.State() != Ready {
			c.gate.OnViewportChanged(v)
			return
		}
		c.dispatch(v, ReasonPan)
	})
}

// RenderCompleted reports that the surface finished its first full render.
func (c *OverlayLoadCoordinator) RenderCompleted() {
	c.run(c.gate.OnRenderComplete)
}

// LocationUpdated reports a classified location fix.
func (c *OverlayLoadCoordinator) LocationUpdated(accurate, isStale bool) {
	c.run(func() { c.gate.OnLocationSample(accurate && !isStale) })
}

// LocationSampled classifies a raw fix and reports it.
func (c *OverlayLoadCoordinator) LocationSampled(s models.LocationSample) {
	accurate := c.cfg.IsAccurate(s)
	c.LocationUpdated(accurate, s.Age > c.cfg.AccurateMaxAge)
}

// AccuracyTimeoutFired ends the wait for an accurate fix early. The
// coordinator arms its own timeout; this is for callers that track time
// themselves.
func (c *OverlayLoadCoordinator) AccuracyTimeoutFired() {
	c.run(c.gate.OnAccuracyTimeout)
}

// RecenterRequested handles a programmatic jump. It loads immediately and
// ignores the readiness gate: an explicit user action wins over startup
// sequencing.
func (c *OverlayLoadCoordinator) RecenterRequested(v models.Viewport, reason Reason) {
	if !reason.Immediate() {
		reason = ReasonUser
	}
	c.run(func() {
		if c.hasCurrent {
			log.Printf("[OverlayLoadCoordinator] Recenter (%s) moving %.0fm to %v",
				reason, viewport.DistanceMeters(c.current.Center, v.Center), v)
		}
		c.current = v
		c.hasCurrent = true
		c.dispatch(v, reason)
	})
}

// ToggleOverlaysEnabled switches overlay loading on or off and reports
// whether overlays went from off to on. That transition bumps the
// force-reload counter; the caller then calls Repaint.
func (c *OverlayLoadCoordinator) ToggleOverlaysEnabled(enabled bool) bool {
	switchedOn := false
	c.run(func() {
		if enabled == c.overlaysEnabled {
			return
		}
		c.overlaysEnabled = enabled
		if !enabled {
			c.scheduler.CancelPending()
			log.Println("[OverlayLoadCoordinator] Overlays disabled")
			return
		}
		switchedOn = true
		tick := c.scheduler.BumpForceReload()
		log.Printf("[OverlayLoadCoordinator] Overlays enabled, force reload tick %d", tick)
	})
	return switchedOn
}

// Repaint issues an immediate event for the current viewport once the gate
// is open. It is dropped if overlays were disabled again in the meantime.
func (c *OverlayLoadCoordinator) Repaint(reason Reason) {
	if !reason.Immediate() {
		reason = ReasonUser
	}
	c.run(func() {
		if c.gate.State() != Ready || !c.hasCurrent {
			return
		}
		c.dispatch(c.current, reason)
	})
}

// ForceReload makes the next immediate event load even for an unchanged tile.
func (c *OverlayLoadCoordinator) ForceReload() {
	c.run(func() { c.scheduler.BumpForceReload() })
}

// CurrentViewport returns the last viewport the surface reported or was
// recentered to.
func (c *OverlayLoadCoordinator) CurrentViewport() (models.Viewport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasCurrent
}

func (c *OverlayLoadCoordinator) State() ReadinessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.State()
}

func (c *OverlayLoadCoordinator) OverlaysEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlaysEnabled
}

// LastTileKey returns the tile key of the last issued load.
func (c *OverlayLoadCoordinator) LastTileKey() (viewport.TileKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler.LastTileKey()
}

// Close stops every timer. Calls after Close are ignored.
func (c *OverlayLoadCoordinator) Close() {
	c.run(func() {
		c.accuracyTimer.Stop()
		c.gate.Stop()
		c.scheduler.CancelPending()
		c.closed = true
	})
}

func (c *OverlayLoadCoordinator) onReady(v models.Viewport) {
	metrics.ReadinessLatencySeconds.Observe(c.clock.Now().Sub(c.startedAt).Seconds())
	c.accuracyTimer.Stop()
	c.dispatch(v, ReasonInitial)
}

func (c *OverlayLoadCoordinator) dispatch(v models.Viewport, reason Reason) {
	if !c.overlaysEnabled {
		metrics.EventsDroppedTotal.WithLabelValues("overlays_disabled").Inc()
		return
	}
	c.scheduler.OnViewportEvent(v, reason)
}

// enqueue tags an issued load; run hands it to the loader after unlocking.
func (c *OverlayLoadCoordinator) enqueue(req LoadRequest) {
	c.counter++
	tag := fmt.Sprintf("%s-%d", req.Reason, c.counter)
	metrics.LoadsIssuedTotal.WithLabelValues(string(req.Reason)).Inc()
	log.Printf("[OverlayLoadCoordinator] Requesting load %s for tile %s", tag, req.Key)
	c.outbox = append(c.outbox, outgoingLoad{viewport: req.Viewport, tag: tag})
}

package coordinator

import (
	"log"

	"overlay-server/clock"
	"overlay-server/metrics"
	"overlay-server/models"
	"overlay-server/viewport"
)

// ReadinessState is the startup phase of a map surface.
type ReadinessState int

const (
	NotReady ReadinessState = iota
	WaitingForRegionStability
	Ready
)

func (s ReadinessState) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case WaitingForRegionStability:
		return "WaitingForRegionStability"
	case Ready:
		return "Ready"
	}
	return "Unknown"
}

// ReadinessGate holds back the first overlay load until the surface has
// rendered, its region has stopped moving and the location is either
// accurate or has had its chance. It opens once and never closes again.
type ReadinessGate struct {
	cfg     Config
	clock   clock.Clock
	onReady func(models.Viewport)

	state         ReadinessState
	renderDone    bool
	regionSettled bool
	accurateSeen  bool
	timedOut      bool

	latest      models.Viewport
	hasViewport bool

	settleTimer clock.Timer
	settleGen   uint64
}

// NewReadinessGate returns a gate that calls onReady with the settled
// viewport the one time it opens.
func NewReadinessGate(cfg Config, clk clock.Clock, onReady func(models.Viewport)) *ReadinessGate {
	return &ReadinessGate{cfg: cfg, clock: clk, onReady: onReady}
}

func (g *ReadinessGate) State() ReadinessState {
	return g.state
}

// OnRenderComplete records the first full render. Later calls are ignored.
func (g *ReadinessGate) OnRenderComplete() {
	if g.state == Ready || g.renderDone {
		return
	}
	g.renderDone = true
	g.state = WaitingForRegionStability
	log.Println("[ReadinessGate] Render completed, waiting for region to settle")
	g.evaluate()
}

// OnViewportChanged restarts the region-settle timer.
func (g *ReadinessGate) OnViewportChanged(v models.Viewport) {
	if g.state == Ready {
		return
	}
	g.latest = v
	g.hasViewport = true
	g.regionSettled = false
	g.stopSettleTimer()

	g.settleGen++
	gen := g.settleGen
	g.settleTimer = g.clock.AfterFunc(g.cfg.RegionSettleDelay, func() { g.regionSettle(gen) })
}

func (g *ReadinessGate) regionSettle(gen uint64) {
	if g.state == Ready || gen != g.settleGen {
		return
	}
	g.settleTimer = nil
	g.regionSettled = true
	g.evaluate()
}

// OnLocationSample records whether an accurate, fresh fix has been seen.
func (g *ReadinessGate) OnLocationSample(accurate bool) {
	if g.state == Ready || !accurate || g.accurateSeen {
		return
	}
	g.accurateSeen = true
	log.Println("[ReadinessGate] Accurate location observed")
	g.evaluate()
}

// OnAccuracyTimeout records that the wait for an accurate fix is over.
func (g *ReadinessGate) OnAccuracyTimeout() {
	if g.state == Ready || g.timedOut {
		return
	}
	g.timedOut = true
	log.Println("[ReadinessGate] Accuracy timeout reached")
	g.evaluate()
}

// evaluate opens the gate when every startup condition holds. It returns
// true only on the call that opens it.
func (g *ReadinessGate) evaluate() bool {
	if g.state == Ready {
		return false
	}
	if !g.renderDone || !g.regionSettled || !g.hasViewport {
		return false
	}
	if !g.accurateSeen && !g.timedOut {
		return false
	}
	if viewport.IsTooWide(g.latest, g.cfg.MaxLatDelta, g.cfg.MaxLonDelta) {
		log.Printf("[ReadinessGate] Settled viewport %v is too wide, still waiting", g.latest)
		metrics.EventsDroppedTotal.WithLabelValues("startup_too_wide").Inc()
		return false
	}

	g.state = Ready
	g.stopSettleTimer()
	log.Printf("[ReadinessGate] Ready at %v", g.latest)
	g.onReady(g.latest)
	return true
}

func (g *ReadinessGate) stopSettleTimer() {
	g.settleGen++
	if g.settleTimer != nil {
		g.settleTimer.Stop()
		g.settleTimer = nil
	}
}

// Stop cancels the settle timer without changing state.
func (g *ReadinessGate) Stop() {
	g.stopSettleTimer()
}

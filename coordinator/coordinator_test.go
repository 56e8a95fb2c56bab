package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlay-server/viewport"
)

func TestCoordinator_StartupWithAccurateLocation(t *testing.T) {
	c, clk, loader := newTestCoordinator()

	c.RenderCompleted()
	clk.Advance(100 * time.Millisecond)
	c.ViewportChanged(berlin)
	clk.Advance(100 * time.Millisecond)
	c.LocationSampled(accurateFix())

	clk.Advance(249 * time.Millisecond)
	assert.Empty(t, loader.all(), "region has not been quiet for 350ms yet")
	assert.Equal(t, WaitingForRegionStability, c.State())

	clk.Advance(time.Millisecond)
	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, berlin, loads[0].viewport)
	assert.Equal(t, "initial-1", loads[0].tag)
	assert.Equal(t, Ready, c.State())

	clk.Advance(10 * time.Second)
	assert.Len(t, loader.all(), 1, "accuracy timeout after ready must not load again")
}

func TestCoordinator_StartupWaitsForAccuracyTimeout(t *testing.T) {
	c, clk, loader := newTestCoordinator()

	c.RenderCompleted()
	clk.Advance(100 * time.Millisecond)
	c.ViewportChanged(berlin)

	clk.Advance(3899 * time.Millisecond)
	assert.Empty(t, loader.all())
	assert.Equal(t, WaitingForRegionStability, c.State())

	clk.Advance(time.Millisecond)
	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, berlin, loads[0].viewport)
	assert.Equal(t, Ready, c.State())
}

func TestCoordinator_InaccurateOrStaleFixesDoNotOpenGate(t *testing.T) {
	c, clk, loader := newTestCoordinator()

	c.RenderCompleted()
	c.ViewportChanged(berlin)
	c.LocationSampled(sample(80, time.Second))
	c.LocationSampled(sample(5, time.Minute))
	c.LocationUpdated(true, true)
	clk.Advance(time.Second)

	assert.Empty(t, loader.all())
	assert.Equal(t, WaitingForRegionStability, c.State())
}

func TestCoordinator_ReadinessLatch(t *testing.T) {
	c, clk, loader := readyCoordinator(berlin)

	c.RenderCompleted()
	c.LocationUpdated(true, false)
	c.AccuracyTimeoutFired()
	clk.Advance(time.Second)

	assert.Empty(t, loader.all(), "late startup signals are ignored once ready")
	assert.Equal(t, Ready, c.State())

	c.ViewportChanged(worldView())
	clk.Advance(time.Second)
	assert.Empty(t, loader.all(), "oversized pans are still dropped after ready")
}

func TestCoordinator_DebounceCoalescesBurst(t *testing.T) {
	c, clk, loader := readyCoordinator(berlin)

	last := berlin
	for i := 1; i <= 10; i++ {
		last = vp(berlin.Center.Lat+float64(i)*0.1, berlin.Center.Lon)
		c.ViewportChanged(last)
		clk.Advance(50 * time.Millisecond)
	}
	clk.Advance(199 * time.Millisecond)
	assert.Empty(t, loader.all())

	clk.Advance(time.Millisecond)
	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, last, loads[0].viewport)
	assert.Equal(t, "pan-2", loads[0].tag)
}

func TestCoordinator_RecenterPreemptsPendingPan(t *testing.T) {
	c, clk, loader := readyCoordinator(berlin)

	c.ViewportChanged(vp(53.0, 13.405))
	c.RecenterRequested(paris, ReasonSearchResult)
	clk.Advance(time.Second)

	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, paris, loads[0].viewport)
	assert.Equal(t, "searchResult-2", loads[0].tag)
}

func TestCoordinator_RecenterDedup(t *testing.T) {
	c, _, loader := readyCoordinator(berlin)

	c.RecenterRequested(paris, ReasonUser)
	c.RecenterRequested(vp(paris.Center.Lat+0.001, paris.Center.Lon), ReasonPointOfInterest)

	assert.Len(t, loader.all(), 1)
}

func TestCoordinator_ForceReloadAfterOverlaysReenabled(t *testing.T) {
	c, _, loader := readyCoordinator(berlin)

	c.RecenterRequested(berlin, ReasonUser)
	assert.Empty(t, loader.all(), "same tile as the initial load")

	c.ToggleOverlaysEnabled(false)
	c.ToggleOverlaysEnabled(true)
	c.RecenterRequested(berlin, ReasonOverlaysEnabled)

	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, "overlaysEnabled-2", loads[0].tag)

	c.RecenterRequested(berlin, ReasonUser)
	assert.Len(t, loader.all(), 1, "the force tick is spent by the load it caused")
}

func TestCoordinator_ToggleReportsSwitchOn(t *testing.T) {
	c, _, _ := readyCoordinator(berlin)

	assert.False(t, c.ToggleOverlaysEnabled(true), "already enabled")
	assert.False(t, c.ToggleOverlaysEnabled(false))
	assert.True(t, c.ToggleOverlaysEnabled(true))
	assert.False(t, c.ToggleOverlaysEnabled(true))
}

func TestCoordinator_RepaintAfterDisableIsDropped(t *testing.T) {
	c, _, loader := readyCoordinator(berlin)

	c.ToggleOverlaysEnabled(false)
	switchedOn := c.ToggleOverlaysEnabled(true)
	c.ToggleOverlaysEnabled(false)
	require.True(t, switchedOn)
	c.Repaint(ReasonOverlaysEnabled)

	assert.Empty(t, loader.all())
}

func TestCoordinator_RepaintWaitsForGate(t *testing.T) {
	c, _, loader := newTestCoordinator()
	c.ViewportChanged(berlin)

	c.Repaint(ReasonOverlaysEnabled)
	assert.Empty(t, loader.all())

	r, _, readyLoader := readyCoordinator(berlin)
	r.ToggleOverlaysEnabled(false)
	r.ToggleOverlaysEnabled(true)
	r.Repaint(ReasonOverlaysEnabled)

	loads := readyLoader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, "overlaysEnabled-2", loads[0].tag)
}

func TestCoordinator_ForceReload(t *testing.T) {
	c, _, loader := readyCoordinator(berlin)

	c.ForceReload()
	c.RecenterRequested(berlin, ReasonCoordinateEntry)

	assert.Len(t, loader.all(), 1)
}

func TestCoordinator_RecenterBypassesGate(t *testing.T) {
	c, _, loader := newTestCoordinator()

	c.RecenterRequested(paris, ReasonUser)

	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, "user-1", loads[0].tag)
	assert.Equal(t, NotReady, c.State())
}

func TestCoordinator_FirstLoadDedupsAgainstEarlierRecenter(t *testing.T) {
	c, clk, loader := newTestCoordinator()

	c.RecenterRequested(berlin, ReasonUser)
	c.RenderCompleted()
	c.ViewportChanged(berlin)
	c.AccuracyTimeoutFired()
	clk.Advance(time.Second)

	assert.Len(t, loader.all(), 1)
	assert.Equal(t, Ready, c.State())
}

func TestCoordinator_OverlaysDisabledDropsLoads(t *testing.T) {
	c, clk, loader := readyCoordinator(berlin)

	c.ViewportChanged(paris)
	c.ToggleOverlaysEnabled(false)
	clk.Advance(time.Second)
	c.RecenterRequested(vp(40.7128, -74.006), ReasonUser)

	assert.Empty(t, loader.all())
	assert.False(t, c.OverlaysEnabled())
}

func TestCoordinator_GateWaitsOutTooWideViewport(t *testing.T) {
	c, clk, loader := newTestCoordinator()

	c.RenderCompleted()
	c.LocationUpdated(true, false)
	c.ViewportChanged(worldView())
	clk.Advance(time.Second)
	assert.Empty(t, loader.all())

	c.ViewportChanged(paris)
	clk.Advance(350 * time.Millisecond)
	loads := loader.all()
	require.Len(t, loads, 1)
	assert.Equal(t, paris, loads[0].viewport)
}

func TestCoordinator_CurrentViewportAndLastTileKey(t *testing.T) {
	c, _, _ := readyCoordinator(berlin)

	got, ok := c.CurrentViewport()
	assert.True(t, ok)
	assert.Equal(t, berlin, got)

	key, ok := c.LastTileKey()
	assert.True(t, ok)
	assert.Equal(t, viewport.TileKeyOf(berlin), key)
}

func TestCoordinator_Close(t *testing.T) {
	c, clk, loader := newTestCoordinator()

	c.RenderCompleted()
	c.ViewportChanged(berlin)
	c.Close()
	clk.Advance(10 * time.Second)
	c.RecenterRequested(paris, ReasonUser)

	assert.Empty(t, loader.all())
	assert.Equal(t, 0, clk.Pending())
}

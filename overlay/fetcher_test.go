package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlay-server/models"
	"overlay-server/viewport"
)

var testViewport = models.Viewport{
	Center: models.Coordinate{Lat: 52.52, Lon: 13.405},
	Span:   models.Span{LatDelta: 0.1, LonDelta: 0.1},
}

type funcSource func(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error)

func (f funcSource) FeaturesInBounds(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	return f(ctx, b)
}

type chanSink chan LoadResult

func (c chanSink) OverlaysLoaded(r LoadResult) { c <- r }

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*geojson.FeatureCollection
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]*geojson.FeatureCollection)}
}

func (m *memoryCache) GetTileSnapshot(key string) (*geojson.FeatureCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *memoryCache) SetTileSnapshot(key string, fc *geojson.FeatureCollection, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = fc
	return nil
}

func testConfig() FetcherConfig {
	return FetcherConfig{MaxRetries: 3, RetryBackoff: time.Millisecond, CacheTTL: time.Minute}
}

func oneFeature(id string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{13.4, 52.5})
	f.ID = id
	fc.Append(f)
	return fc
}

func receive(t *testing.T, sink chanSink) LoadResult {
	t.Helper()
	select {
	case r := <-sink:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no load delivered")
	}
	return LoadResult{}
}

func TestFetcher_DeliversAndCaches(t *testing.T) {
	var bounds []orb.Bound
	source := funcSource(func(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
		bounds = append(bounds, b)
		return oneFeature("zone-1"), nil
	})
	sink := make(chanSink, 2)
	cache := newMemoryCache()
	f := NewFetcher(testConfig(), source, cache, sink)
	defer f.Close()

	f.RequestLoad(testViewport, "initial-1")
	r := receive(t, sink)

	assert.Equal(t, "initial-1", r.Tag)
	assert.Equal(t, uint64(1), r.Seq)
	assert.False(t, r.FromCache)
	require.Len(t, r.Features.Features, 1)
	assert.Equal(t, "zone-1", r.Features.Features[0].ID)
	require.Len(t, bounds, 1)
	assert.True(t, bounds[0].Contains(orb.Point{13.405, 52.52}))

	f.RequestLoad(testViewport, "user-2")
	r = receive(t, sink)

	assert.True(t, r.FromCache)
	assert.Len(t, bounds, 1, "second load served from the tile cache")
}

func TestFetcher_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	source := funcSource(func(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("upstream unavailable")
		}
		return oneFeature("zone-2"), nil
	})
	sink := make(chanSink, 1)
	f := NewFetcher(testConfig(), source, nil, sink)
	defer f.Close()

	f.RequestLoad(testViewport, "pan-1")
	r := receive(t, sink)

	assert.Equal(t, 3, calls)
	assert.Len(t, r.Features.Features, 1)
}

func TestFetcher_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	exhausted := make(chan struct{})
	source := funcSource(func(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
		calls++
		if calls == 3 {
			close(exhausted)
		}
		return nil, errors.New("boom")
	})
	sink := make(chanSink, 1)
	f := NewFetcher(testConfig(), source, nil, sink)

	f.RequestLoad(testViewport, "pan-1")
	<-exhausted
	f.Close()

	assert.Equal(t, 3, calls)
	assert.Empty(t, sink)
}

func TestFetcher_NewerLoadSupersedesInFlight(t *testing.T) {
	started := make(chan struct{})
	source := funcSource(func(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
		if b.Contains(orb.Point{13.405, 52.52}) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return oneFeature("paris"), nil
	})
	sink := make(chanSink, 2)
	f := NewFetcher(testConfig(), source, nil, sink)

	f.RequestLoad(testViewport, "pan-1")
	<-started
	paris := models.Viewport{
		Center: models.Coordinate{Lat: 48.8566, Lon: 2.3522},
		Span:   models.Span{LatDelta: 0.1, LonDelta: 0.1},
	}
	f.RequestLoad(paris, "searchResult-2")
	r := receive(t, sink)
	f.Close()

	assert.Equal(t, "searchResult-2", r.Tag)
	assert.Equal(t, uint64(2), r.Seq)
	assert.Empty(t, sink, "the superseded load is never delivered")
}

func TestFetcher_IgnoresRequestsAfterClose(t *testing.T) {
	source := funcSource(func(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
		t.Error("source must not be called after close")
		return nil, nil
	})
	sink := make(chanSink, 1)
	f := NewFetcher(testConfig(), source, nil, sink)

	f.Close()
	f.RequestLoad(testViewport, "pan-1")
	f.Close()

	assert.Empty(t, sink)
}

func TestCacheKey(t *testing.T) {
	zoomedOut := testViewport
	zoomedOut.Span = models.Span{LatDelta: 0.4, LonDelta: 0.4}

	assert.Equal(t, "52.5300,13.4300@0.0850,0.0850", CacheKey(testViewport))
	assert.NotEqual(t, CacheKey(testViewport), CacheKey(zoomedOut))
}

func TestFetchBound_CentersOnSnappedTile(t *testing.T) {
	b := FetchBound(testViewport)

	// step 0.085: 52.52 snaps to 52.53, 13.405 to 13.43
	assert.InDelta(t, 52.53, b.Center()[1], 1e-9)
	assert.InDelta(t, 13.43, b.Center()[0], 1e-9)
	assert.InDelta(t, 0.185, b.Max[1]-b.Min[1], 1e-9)
	assert.InDelta(t, 0.185, b.Max[0]-b.Min[0], 1e-9)
}

func TestFetchBound_CoversEveryViewportSharingTheKey(t *testing.T) {
	span := models.Span{LatDelta: 0.2, LonDelta: 0.2}
	latStep, lonStep := viewport.Steps(span)
	// step 0.17: a grid point near Berlin Mitte
	base := models.Coordinate{Lat: 309 * latStep, Lon: 79 * lonStep}

	offsets := []float64{-0.45, 0.45}
	for _, dLat := range offsets {
		for _, dLon := range offsets {
			a := models.Viewport{
				Center: models.Coordinate{Lat: base.Lat + dLat*latStep, Lon: base.Lon + dLon*lonStep},
				Span:   span,
			}
			b := models.Viewport{
				Center: models.Coordinate{Lat: base.Lat - dLat*latStep, Lon: base.Lon - dLon*lonStep},
				Span:   span,
			}
			require.Equal(t, CacheKey(a), CacheKey(b))

			cached := FetchBound(a)
			for _, v := range []models.Viewport{a, b} {
				screen := viewport.Bound(v)
				assert.True(t, cached.Contains(screen.Min), "%v min outside cached bound %v", v, cached)
				assert.True(t, cached.Contains(screen.Max), "%v max outside cached bound %v", v, cached)
			}
		}
	}
}

func TestStoreSource_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStoreSource(nil).FeaturesInBounds(ctx, orb.Bound{})

	assert.ErrorIs(t, err, context.Canceled)
}

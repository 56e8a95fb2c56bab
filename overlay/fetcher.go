package overlay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"overlay-server/config"
	"overlay-server/metrics"
	"overlay-server/models"
	"overlay-server/viewport"
)

// FetcherConfig tunes retries, rate limiting and caching.
type FetcherConfig struct {
	MaxRetries    int
	RetryBackoff  time.Duration
	RatePerSecond float64
	Burst         int
	CacheTTL      time.Duration
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxRetries:    config.OVERLAY_FETCH_MAX_RETRIES,
		RetryBackoff:  config.OVERLAY_FETCH_RETRY_BACKOFF,
		RatePerSecond: config.OVERLAY_FETCH_RATE_PER_SECOND,
		Burst:         config.OVERLAY_FETCH_BURST,
		CacheTTL:      config.OVERLAY_TILE_CACHE_TTL,
	}
}

// Fetcher is the coordinator's OverlayLoader. Each RequestLoad supersedes
// the fetch still in flight, if any.
type Fetcher struct {
	cfg     FetcherConfig
	source  Source
	cache   TileCache
	sink    Sink
	limiter *rate.Limiter

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewFetcher builds a fetcher. cache may be nil.
func NewFetcher(cfg FetcherConfig, source Source, cache TileCache, sink Sink) *Fetcher {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Fetcher{
		cfg:     cfg,
		source:  source,
		cache:   cache,
		sink:    sink,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// RequestLoad starts fetching overlays for v and returns immediately.
func (f *Fetcher) RequestLoad(v models.Viewport, tag string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.seq++
	seq := f.seq
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer cancel()
		f.fetch(ctx, seq, v, tag)
	}()
}

// Close cancels the in-flight fetch and waits for it to return.
func (f *Fetcher) Close() {
	f.mu.Lock()
	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *Fetcher) fetch(ctx context.Context, seq uint64, v models.Viewport, tag string) {
	key := CacheKey(v)
	if err := f.limiter.Wait(ctx); err != nil {
		f.superseded(tag)
		return
	}

	if f.cache != nil {
		fc, err := f.cache.GetTileSnapshot(key)
		switch {
		case err != nil:
			log.Printf("[OverlayFetcher] Tile cache read failed for %s: %v", key, err)
		case fc != nil:
			metrics.TileCacheHitsTotal.Inc()
			f.deliver(ctx, LoadResult{Seq: seq, Tag: tag, Viewport: v, CacheKey: key, Features: fc, FromCache: true})
			return
		default:
			metrics.TileCacheMissesTotal.Inc()
		}
	}

	start := time.Now()
	fc, err := f.fetchWithRetry(ctx, FetchBound(v), tag)
	metrics.FetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if ctx.Err() != nil {
		f.superseded(tag)
		return
	}
	if err != nil {
		metrics.FetchFailTotal.Inc()
		log.Printf("[OverlayFetcher] Load %s failed after %d attempts: %v", tag, f.cfg.MaxRetries, err)
		return
	}

	if f.cache != nil {
		if err := f.cache.SetTileSnapshot(key, fc, f.cfg.CacheTTL); err != nil {
			log.Printf("[OverlayFetcher] Tile cache write failed for %s: %v", key, err)
		}
	}
	f.deliver(ctx, LoadResult{Seq: seq, Tag: tag, Viewport: v, CacheKey: key, Features: fc})
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, b orb.Bound, tag string) (*geojson.FeatureCollection, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		fc, err := f.source.FeaturesInBounds(ctx, b)
		if err == nil {
			if fc == nil {
				fc = geojson.NewFeatureCollection()
			}
			return fc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[OverlayFetcher] Load %s attempt %d/%d failed: %v", tag, attempt, f.cfg.MaxRetries, err)
		if attempt == f.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("fetching overlays: %w", lastErr)
}

func (f *Fetcher) deliver(ctx context.Context, r LoadResult) {
	if ctx.Err() != nil {
		f.superseded(r.Tag)
		return
	}
	r.LoadedAt = time.Now()
	log.Printf("[OverlayFetcher] Load %s delivered %d features (cache=%v)", r.Tag, len(r.Features.Features), r.FromCache)
	f.sink.OverlaysLoaded(r)
}

func (f *Fetcher) superseded(tag string) {
	metrics.FetchSupersededTotal.Inc()
	log.Printf("[OverlayFetcher] Load %s superseded", tag)
}

// CacheKey identifies a snapshot by tile key and snapping step, so a zoomed
// out view never reuses a snapshot fetched for a smaller area.
func CacheKey(v models.Viewport) string {
	latStep, lonStep := viewport.Steps(v.Span)
	return fmt.Sprintf("%s@%.4f,%.4f", viewport.TileKeyOf(v), latStep, lonStep)
}

// FetchBound is the area a snapshot cached under CacheKey(v) covers: the
// span around the snapped tile center, padded by half a step per side, which
// holds every viewport that shares the key.
func FetchBound(v models.Viewport) orb.Bound {
	latStep, lonStep := viewport.Steps(v.Span)
	tile := models.Viewport{
		Center: viewport.SnappedCenter(v),
		Span: models.Span{
			LatDelta: v.Span.LatDelta + latStep,
			LonDelta: v.Span.LonDelta + lonStep,
		},
	}
	return viewport.Bound(tile)
}

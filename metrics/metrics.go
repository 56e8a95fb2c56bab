package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoadsIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_loads_issued_total",
		Help: "Overlay loads requested by the coordinator, by reason",
	}, []string{"reason"})
	EventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_events_dropped_total",
		Help: "Viewport events that did not produce a load, by cause",
	}, []string{"cause"})
	ReadinessLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlay_readiness_latency_seconds",
		Help:    "Time from session start until the readiness gate opened",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	})
	FetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlay_fetch_duration_ms",
		Help:    "Overlay source fetch duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	FetchFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_fetch_fail_total",
		Help: "Overlay fetches that failed after all retries",
	})
	FetchSupersededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_fetch_superseded_total",
		Help: "Overlay fetches cancelled because a newer load arrived",
	})
	TileCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_tile_cache_hits_total",
		Help: "Overlay loads served from the tile snapshot cache",
	})
	TileCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_tile_cache_misses_total",
		Help: "Overlay loads that missed the tile snapshot cache",
	})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlay_active_sessions",
		Help: "Map sessions currently held by the server",
	})
	RefresherFeaturesUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_refresher_features_upserted_total",
		Help: "Overlay features written by the refresher job",
	})
)

func init() {
	prometheus.MustRegister(LoadsIssuedTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(ReadinessLatencySeconds)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(FetchFailTotal)
	prometheus.MustRegister(FetchSupersededTotal)
	prometheus.MustRegister(TileCacheHitsTotal)
	prometheus.MustRegister(TileCacheMissesTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(RefresherFeaturesUpserted)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"overlay-server/api/overlayapi"
	"overlay-server/dao/redis"
	"overlay-server/metrics"
)

// Region is a named area the refresher keeps in the local store.
type Region struct {
	Name  string
	Bound orb.Bound
}

// defaultRegions is the list of areas to ingest.
var defaultRegions = []Region{
	{
		Name:  "Berlin Mitte",
		Bound: orb.Bound{Min: orb.Point{13.30, 52.45}, Max: orb.Point{13.50, 52.56}},
	},
	{
		Name:  "Paris Centre",
		Bound: orb.Bound{Min: orb.Point{2.25, 48.82}, Max: orb.Point{2.42, 48.90}},
	},
}

// OverlayFeatureStore is the write side of the overlay feature DAO.
type OverlayFeatureStore interface {
	UpsertFeature(f *geojson.Feature) error
	ListFeatureIDs() ([]string, error)
	DeleteFeature(id string) error
}

// OverlayRefresherService periodically copies overlay features from the
// remote API into the local geo index.
type OverlayRefresherService struct {
	store      OverlayFeatureStore
	overlayAPI overlayapi.OverlayAPI
	regions    []Region
}

// NewOverlayRefresherService constructs a new refresher over the default
// regions.
func NewOverlayRefresherService(store OverlayFeatureStore, overlayAPI overlayapi.OverlayAPI) *OverlayRefresherService {
	return NewOverlayRefresherServiceForRegions(store, overlayAPI, defaultRegions)
}

func NewOverlayRefresherServiceForRegions(store OverlayFeatureStore, overlayAPI overlayapi.OverlayAPI, regions []Region) *OverlayRefresherService {
	return &OverlayRefresherService{
		store:      store,
		overlayAPI: overlayAPI,
		regions:    regions,
	}
}

// StartPeriodicJob launches the background loop at the given interval.
func (rs *OverlayRefresherService) StartPeriodicJob(ctx context.Context, interval time.Duration) {
	go rs.startPeriodicJob(ctx, interval)
}

func (rs *OverlayRefresherService) startPeriodicJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		log.Println("[OverlayRefresherService] Running periodic overlay refresher job.")
		if err := rs.RefreshOverlayData(ctx); err != nil {
			log.Printf("[OverlayRefresherService] RefreshOverlayData returned error: %v", err)
		} else {
			log.Println("[OverlayRefresherService] RefreshOverlayData completed successfully.")
		}
	}
}

// RefreshOverlayData fetches every region, upserts each feature once and
// prunes features no region returned. Pruning is skipped when any region
// failed so a provider outage does not empty the store.
func (rs *OverlayRefresherService) RefreshOverlayData(ctx context.Context) error {
	seen := make(map[string]bool)
	var errs []error

	for _, region := range rs.regions {
		fc, err := rs.overlayAPI.FeaturesInBounds(ctx, region.Bound)
		if err != nil {
			log.Printf("[OverlayRefresherService] Failed to fetch region %s: %v", region.Name, err)
			errs = append(errs, fmt.Errorf("region %s: %w", region.Name, err))
			continue
		}

		upserted := 0
		for _, f := range fc.Features {
			id := redis.FeatureID(f)
			if id == "" || seen[id] {
				continue
			}
			if err := rs.store.UpsertFeature(f); err != nil {
				log.Printf("[OverlayRefresherService] Failed to upsert feature %s: %v", id, err)
				errs = append(errs, err)
				continue
			}
			seen[id] = true
			upserted++
		}
		metrics.RefresherFeaturesUpserted.Add(float64(upserted))
		log.Printf("[OverlayRefresherService] Region %s: %d features upserted", region.Name, upserted)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return rs.pruneStale(seen)
}

func (rs *OverlayRefresherService) pruneStale(seen map[string]bool) error {
	ids, err := rs.store.ListFeatureIDs()
	if err != nil {
		return fmt.Errorf("failed to list stored features: %w", err)
	}
	pruned := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if err := rs.store.DeleteFeature(id); err != nil {
			return fmt.Errorf("failed to prune feature %s: %w", id, err)
		}
		pruned++
	}
	if pruned > 0 {
		log.Printf("[OverlayRefresherService] Pruned %d stale features", pruned)
	}
	return nil
}

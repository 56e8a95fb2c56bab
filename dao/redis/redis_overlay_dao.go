package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"overlay-server/config"
	"overlay-server/db"
)

const OVERLAY_GEO_KEY_V1 = "overlay_geo_v1"
const OVERLAY_FEATURE_MEMBER_FORMAT_V1 = "overlay_feature_v1:%s"

// OVERLAY_MAX_RADIUS_KEY_V1 holds the largest anchor-to-corner radius (km) of
// any feature ever indexed. It only grows.
const OVERLAY_MAX_RADIUS_KEY_V1 = "overlay_max_feature_radius_v1"

// OVERLAY_TILE_KEY_FORMAT_V1 caches the feature collection fetched for a tile.
const OVERLAY_TILE_KEY_FORMAT_V1 = "overlay_tile_v1:%s"

// ErrMissingFeatureID is returned when a feature has neither an id nor an
// "id" property.
var ErrMissingFeatureID = errors.New("feature has no id")

// RedisOverlayDAO handles overlay feature operations using Redis.
type RedisOverlayDAO struct {
	client   db.RedisClient
	marginKm float64
}

// NewRedisOverlayDAO initializes a RedisOverlayDAO with the Redis client.
func NewRedisOverlayDAO(client db.RedisClient) *RedisOverlayDAO {
	return &RedisOverlayDAO{client: client, marginKm: config.OVERLAY_SEARCH_MARGIN_KM}
}

// FeatureID returns the identifier a feature is stored under.
func FeatureID(f *geojson.Feature) string {
	if f.ID != nil {
		if id := fmt.Sprint(f.ID); id != "" {
			return id
		}
	}
	return f.Properties.MustString("id", "")
}

// UpsertFeature stores the feature in the geo index, anchored at the center
// of its geometry's bound. Upserts are expected from a single writer.
func (dao *RedisOverlayDAO) UpsertFeature(f *geojson.Feature) error {
	id := FeatureID(f)
	if id == "" {
		return ErrMissingFeatureID
	}
	if f.Geometry == nil {
		return fmt.Errorf("feature %s has no geometry", id)
	}
	bound := f.Geometry.Bound()
	anchor := bound.Center()
	memberKey := fmt.Sprintf(OVERLAY_FEATURE_MEMBER_FORMAT_V1, id)
	if err := dao.client.AddLocationWithJSON(dao.client.GetContext(), OVERLAY_GEO_KEY_V1, memberKey, anchor.Lat(), anchor.Lon(), f); err != nil {
		return fmt.Errorf("failed to upsert feature %s: %w", id, err)
	}
	return dao.growMaxRadius(boundRadiusKm(bound))
}

// GetFeaturesInBounds returns the stored features whose geometry intersects b.
// The radius query covers the bound's circumcircle, widened by the largest
// indexed feature radius so big polygons anchored far outside b still match.
func (dao *RedisOverlayDAO) GetFeaturesInBounds(b orb.Bound) (*geojson.FeatureCollection, error) {
	maxRadiusKm, err := dao.maxRadius()
	if err != nil {
		return nil, err
	}
	center := b.Center()
	radiusKm := boundRadiusKm(b) + maxRadiusKm + dao.marginKm

	features, err := dao.nearby(center.Lat(), center.Lon(), radiusKm)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if f.Geometry != nil && f.Geometry.Bound().Intersects(b) {
			fc.Append(f)
		}
	}
	return fc, nil
}

// GetNearbyFeatures retrieves features anchored within radiusKm of a point.
func (dao *RedisOverlayDAO) GetNearbyFeatures(lat, lon, radiusKm float64) (*geojson.FeatureCollection, error) {
	features, err := dao.nearby(lat, lon, radiusKm)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return fc, nil
}

func (dao *RedisOverlayDAO) nearby(lat, lon, radiusKm float64) ([]*geojson.Feature, error) {
	featuresJSON, err := dao.client.GetLocationsWithinRadius(OVERLAY_GEO_KEY_V1, lat, lon, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("[RedisOverlayDAO] failed to get features: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(featuresJSON))
	for _, raw := range featuresJSON {
		f, err := geojson.UnmarshalFeature([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal feature JSON: %w", err)
		}
		features = append(features, f)
	}
	return features, nil
}

func (dao *RedisOverlayDAO) maxRadius() (float64, error) {
	str, err := dao.client.Get(OVERLAY_MAX_RADIUS_KEY_V1)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get max feature radius: %w", err)
	}
	r, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid max feature radius %q: %w", str, err)
	}
	return r, nil
}

func (dao *RedisOverlayDAO) growMaxRadius(radiusKm float64) error {
	current, err := dao.maxRadius()
	if err != nil {
		return err
	}
	if radiusKm <= current {
		return nil
	}
	if err := dao.client.Set(OVERLAY_MAX_RADIUS_KEY_V1, strconv.FormatFloat(radiusKm, 'f', 3, 64)); err != nil {
		return fmt.Errorf("failed to set max feature radius: %w", err)
	}
	return nil
}

// boundRadiusKm is the distance from the bound's center to its farthest corner.
func boundRadiusKm(b orb.Bound) float64 {
	center := b.Center()
	corners := []orb.Point{b.Min, b.Max, {b.Min[0], b.Max[1]}, {b.Max[0], b.Min[1]}}
	var r float64
	for _, c := range corners {
		r = math.Max(r, geo.Distance(center, c))
	}
	return r / 1000
}

// ListFeatureIDs returns all feature IDs present in the geo index.
func (dao *RedisOverlayDAO) ListFeatureIDs() ([]string, error) {
	keys, err := dao.client.Keys(fmt.Sprintf(OVERLAY_FEATURE_MEMBER_FORMAT_V1, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list feature keys: %w", err)
	}
	prefix := fmt.Sprintf(OVERLAY_FEATURE_MEMBER_FORMAT_V1, "")
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids, nil
}

func (dao *RedisOverlayDAO) DeleteFeature(id string) error {
	memberKey := fmt.Sprintf(OVERLAY_FEATURE_MEMBER_FORMAT_V1, id)
	if err := dao.client.RemoveLocation(OVERLAY_GEO_KEY_V1, memberKey); err != nil {
		return err
	}
	if err := dao.client.Del(memberKey); err != nil {
		return fmt.Errorf("failed to delete feature key %s: %w", memberKey, err)
	}
	log.Printf("[RedisOverlayDAO] Deleted feature %s", id)
	return nil
}

// SetTileSnapshot caches the collection fetched for a tile.
func (dao *RedisOverlayDAO) SetTileSnapshot(key string, fc *geojson.FeatureCollection, ttl time.Duration) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal tile snapshot %s: %w", key, err)
	}
	if err := dao.client.SetWithTTL(fmt.Sprintf(OVERLAY_TILE_KEY_FORMAT_V1, key), string(data), ttl); err != nil {
		return fmt.Errorf("failed to set tile snapshot in redis: %w", err)
	}
	return nil
}

// GetTileSnapshot returns the cached collection for a tile, or nil on a miss.
func (dao *RedisOverlayDAO) GetTileSnapshot(key string) (*geojson.FeatureCollection, error) {
	str, err := dao.client.Get(fmt.Sprintf(OVERLAY_TILE_KEY_FORMAT_V1, key))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tile snapshot from redis: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection([]byte(str))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tile snapshot JSON: %w", err)
	}
	return fc, nil
}

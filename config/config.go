package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Redis Config
const REDIS_DB_ADDRESS = "redis:6379"
const REDIS_DB_PASSWORD = ""
const REDIS_DB = 0

// Server config
const SERVER_ADDRESS = ":8080"
const SERVER_SHUTDOWN_TIMEOUT = 5 * time.Second

// Readiness gate tuning. Empirical UI values, kept as-is.
const REGION_SETTLE_DELAY = 350 * time.Millisecond
const ACCURACY_TIMEOUT = 4 * time.Second
const ACCURATE_LOCATION_MAX_METERS = 30.0
const ACCURATE_LOCATION_MAX_AGE = 10 * time.Second

// Load scheduler tuning
const PAN_DEBOUNCE_DELAY = 250 * time.Millisecond

// Tile key snapping
const TILE_KEY_MIN_STEP_DEGREES = 0.06
const TILE_KEY_SHRINK = 0.85

// Viewports wider than this are treated as a world view and never loaded.
const MAX_VIEWPORT_LAT_DELTA = 50.0
const MAX_VIEWPORT_LON_DELTA = 80.0

// Fraction of the latitude span a recenter target is pushed north by,
// so the point sits above the bottom sheet.
const RECENTER_VERTICAL_BIAS_FRACTION = 0.15

// Overlay fetch config
const OVERLAY_FETCH_MAX_RETRIES = 3
const OVERLAY_FETCH_RETRY_BACKOFF = 500 * time.Millisecond
const OVERLAY_FETCH_RATE_PER_SECOND = 4.0
const OVERLAY_FETCH_BURST = 2
const OVERLAY_TILE_CACHE_TTL = 10 * time.Minute
const OVERLAY_SEARCH_MARGIN_KM = 5.0

// Overlay refresher / sessions
const OVERLAY_REFRESHER_SCHEDULE_MINUTES = 60
const SESSION_IDLE_TIMEOUT = 30 * time.Minute
const SESSION_REAPER_INTERVAL = time.Minute

// Overlay sources
const OVERLAY_SOURCE_REDIS = "redis"
const OVERLAY_SOURCE_REMOTE = "remote"
const OVERLAY_SOURCE_MOCK = "mock"
const OVERLAY_API_ENDPOINT_BASE_V1 = "https://overlays.example.org/api/v1"

// Resources file paths
const RESOURCES_PATH_PREFIX = "resources"
const OVERLAY_FEATURES_RESOURCE = "overlay_features.geojson"

// Settings holds the runtime configuration resolved from the environment.
type Settings struct {
	Env                string
	ServerAddr         string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	OverlaySource      string
	OverlayAPIBaseURL  string
	OverlayAPIKey      string
	OverlayMockPath    string
	RefreshInterval    time.Duration
	SessionIdleTimeout time.Duration
	FetchRatePerSecond float64
	TileCacheTTL       time.Duration
}

// Load reads .env (if present) and the process environment into Settings.
func Load() *Settings {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] Failed to load .env: %v", err)
	}

	return &Settings{
		Env:                getString("APP_ENV", "dev"),
		ServerAddr:         getString("SERVER_ADDR", SERVER_ADDRESS),
		RedisAddr:          getString("REDIS_ADDR", REDIS_DB_ADDRESS),
		RedisPassword:      getString("REDIS_PASSWORD", REDIS_DB_PASSWORD),
		RedisDB:            getInt("REDIS_DB", REDIS_DB),
		OverlaySource:      getString("OVERLAY_SOURCE", OVERLAY_SOURCE_REDIS),
		OverlayAPIBaseURL:  getString("OVERLAY_API_BASE_URL", OVERLAY_API_ENDPOINT_BASE_V1),
		OverlayAPIKey:      getString("OVERLAY_API_KEY", ""),
		OverlayMockPath:    getString("OVERLAY_MOCK_PATH", GetResourcePath(OVERLAY_FEATURES_RESOURCE)),
		RefreshInterval:    getDuration("OVERLAY_REFRESH_INTERVAL", OVERLAY_REFRESHER_SCHEDULE_MINUTES*time.Minute),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", SESSION_IDLE_TIMEOUT),
		FetchRatePerSecond: getFloat("OVERLAY_FETCH_RATE", OVERLAY_FETCH_RATE_PER_SECOND),
		TileCacheTTL:       getDuration("OVERLAY_TILE_CACHE_TTL", OVERLAY_TILE_CACHE_TTL),
	}
}

func getString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func getInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[Config] Ignoring invalid %s=%q", name, v)
	}
	return def
}

func getFloat(name string, def float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
		log.Printf("[Config] Ignoring invalid %s=%q", name, v)
	}
	return def
}

func getDuration(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("[Config] Ignoring invalid %s=%q", name, v)
	}
	return def
}

// BaseDir returns the absolute path of the project root directory
func BaseDir() string {
	// Check if PROJECT_ROOT is set
	if root := os.Getenv("PROJECT_ROOT"); root != "" {
		return root
	}

	wd, err := os.Getwd()
	if err != nil {
		panic("Unable to determine working directory: " + err.Error())
	}

	return wd
}

func GetResourcePath(resource_file string) string {
	return filepath.Join(BaseDir(), RESOURCES_PATH_PREFIX, resource_file)
}

package coordinator

import (
	"time"

	"overlay-server/config"
	"overlay-server/models"
)

// Config holds the timing and geometry thresholds of one coordinator.
type Config struct {
	RegionSettleDelay time.Duration
	AccuracyTimeout   time.Duration
	PanDebounceDelay  time.Duration

	AccurateMaxMeters float64
	AccurateMaxAge    time.Duration

	MaxLatDelta float64
	MaxLonDelta float64
}

// DefaultConfig returns the tuned values from the config package.
func DefaultConfig() Config {
	return Config{
		RegionSettleDelay: config.REGION_SETTLE_DELAY,
		AccuracyTimeout:   config.ACCURACY_TIMEOUT,
		PanDebounceDelay:  config.PAN_DEBOUNCE_DELAY,
		AccurateMaxMeters: config.ACCURATE_LOCATION_MAX_METERS,
		AccurateMaxAge:    config.ACCURATE_LOCATION_MAX_AGE,
		MaxLatDelta:       config.MAX_VIEWPORT_LAT_DELTA,
		MaxLonDelta:       config.MAX_VIEWPORT_LON_DELTA,
	}
}

// IsAccurate classifies a location fix as good enough to start loading.
func (c Config) IsAccurate(s models.LocationSample) bool {
	return s.HorizontalAccuracyMeters >= 0 &&
		s.HorizontalAccuracyMeters <= c.AccurateMaxMeters &&
		s.Age <= c.AccurateMaxAge
}

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_ADDR", "")
	t.Setenv("OVERLAY_SOURCE", "")
	t.Setenv("OVERLAY_REFRESH_INTERVAL", "")
	t.Setenv("OVERLAY_FETCH_RATE", "")

	s := Load()

	assert.Equal(t, SERVER_ADDRESS, s.ServerAddr)
	assert.Equal(t, OVERLAY_SOURCE_REDIS, s.OverlaySource)
	assert.Equal(t, OVERLAY_REFRESHER_SCHEDULE_MINUTES*time.Minute, s.RefreshInterval)
	assert.Equal(t, OVERLAY_FETCH_RATE_PER_SECOND, s.FetchRatePerSecond)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("OVERLAY_SOURCE", OVERLAY_SOURCE_MOCK)
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("OVERLAY_FETCH_RATE", "not-a-number")

	s := Load()

	assert.Equal(t, ":9090", s.ServerAddr)
	assert.Equal(t, 3, s.RedisDB)
	assert.Equal(t, OVERLAY_SOURCE_MOCK, s.OverlaySource)
	assert.Equal(t, 90*time.Second, s.SessionIdleTimeout)
	assert.Equal(t, OVERLAY_FETCH_RATE_PER_SECOND, s.FetchRatePerSecond, "invalid values fall back to the default")
}

func TestGetResourcePath_UsesProjectRoot(t *testing.T) {
	t.Setenv("PROJECT_ROOT", "/srv/overlay")

	got := GetResourcePath(OVERLAY_FEATURES_RESOURCE)

	assert.Equal(t, filepath.Join("/srv/overlay", RESOURCES_PATH_PREFIX, OVERLAY_FEATURES_RESOURCE), got)
}

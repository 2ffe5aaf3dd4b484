package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadharvest.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, []string{"google_places", "tomtom", "geoapify", "osm"}, cfg.Providers.Priority)
	assert.InDelta(t, 2, cfg.Providers.OSM.RatePerSec, 0.001)
	assert.Equal(t, 0, cfg.Providers.OSM.DailyQuota)
	assert.Equal(t, 100, cfg.Providers.OSM.DefaultLimit)
	assert.InDelta(t, 10, cfg.Providers.GooglePlaces.RatePerSec, 0.001)
	assert.Equal(t, 1000, cfg.Providers.GooglePlaces.DailyQuota)
	assert.Equal(t, 60, cfg.Providers.GooglePlaces.DefaultLimit)
	assert.Equal(t, 3000, cfg.Providers.Geoapify.DailyQuota)
	assert.Equal(t, 2500, cfg.Providers.TomTom.DailyQuota)

	assert.InDelta(t, 0.85, cfg.Dedupe.NameThreshold, 0.001)
	assert.InDelta(t, 0.80, cfg.Dedupe.AddressThreshold, 0.001)
	assert.InDelta(t, 150, cfg.Dedupe.GeoRadiusMeters, 0.001)

	assert.Equal(t, 5, cfg.Enrich.Workers)
	assert.Equal(t, 3, cfg.Enrich.MaxPagesPerLead)
	assert.Equal(t, 15*time.Second, cfg.Enrich.FetchTimeout)
	assert.Contains(t, cfg.Enrich.UserAgent, "LeadHarvestBot")
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
dedupe:
  geo_radius_meters: 200
enrich:
  workers: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 200, cfg.Dedupe.GeoRadiusMeters, 0.001)
	assert.Equal(t, 2, cfg.Enrich.Workers)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.85, cfg.Dedupe.NameThreshold, 0.001)
	assert.Equal(t, 3, cfg.Enrich.MaxPagesPerLead)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADHARVEST_STORE_DRIVER", "sqlite")
	t.Setenv("LEADHARVEST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LEADHARVEST_ENRICH_WORKERS", "9")
	t.Setenv("LEADHARVEST_PROVIDERS_GOOGLE_PLACES_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Enrich.Workers)
	assert.Equal(t, "test-key", cfg.Providers.GooglePlaces.Key)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

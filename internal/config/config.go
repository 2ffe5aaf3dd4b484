// Package config loads application configuration via viper and initializes
// the global zap logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Dedupe    DedupeConfig    `yaml:"dedupe" mapstructure:"dedupe"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ProvidersConfig holds per-provider credentials and limits.
type ProvidersConfig struct {
	GooglePlaces ProviderConfig `yaml:"google_places" mapstructure:"google_places"`
	Geoapify     ProviderConfig `yaml:"geoapify" mapstructure:"geoapify"`
	TomTom       ProviderConfig `yaml:"tomtom" mapstructure:"tomtom"`
	OSM          ProviderConfig `yaml:"osm" mapstructure:"osm"`

	// Priority orders providers for field-merge precedence during
	// deduplication: earlier entries win conflicts.
	Priority []string `yaml:"priority" mapstructure:"priority"`
}

// ProviderConfig holds one provider's key, pacing, and quota settings.
type ProviderConfig struct {
	Key string `yaml:"key" mapstructure:"key"`

	// RatePerSec feeds the token-bucket limiter.
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`

	// DailyQuota caps requests per 24h period; 0 means unlimited.
	DailyQuota int `yaml:"daily_quota" mapstructure:"daily_quota"`

	// DefaultLimit is the per-search result cap when a run does not set one.
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
}

// DedupeConfig holds the fuzzy-matching thresholds.
type DedupeConfig struct {
	NameThreshold    float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	AddressThreshold float64 `yaml:"address_threshold" mapstructure:"address_threshold"`
	GeoRadiusMeters  float64 `yaml:"geo_radius_meters" mapstructure:"geo_radius_meters"`
}

// EnrichConfig configures website crawling during enrichment.
type EnrichConfig struct {
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	MaxPagesPerLead int           `yaml:"max_pages_per_lead" mapstructure:"max_pages_per_lead"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadharvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("providers.priority", []string{"google_places", "tomtom", "geoapify", "osm"})
	v.SetDefault("providers.osm.rate_per_sec", 2)
	v.SetDefault("providers.osm.default_limit", 100)
	v.SetDefault("providers.google_places.key", "")
	v.SetDefault("providers.google_places.rate_per_sec", 10)
	v.SetDefault("providers.google_places.daily_quota", 1000)
	v.SetDefault("providers.google_places.default_limit", 60)
	v.SetDefault("providers.geoapify.key", "")
	v.SetDefault("providers.geoapify.rate_per_sec", 5)
	v.SetDefault("providers.geoapify.daily_quota", 3000)
	v.SetDefault("providers.geoapify.default_limit", 100)
	v.SetDefault("providers.tomtom.key", "")
	v.SetDefault("providers.tomtom.rate_per_sec", 5)
	v.SetDefault("providers.tomtom.daily_quota", 2500)
	v.SetDefault("providers.tomtom.default_limit", 100)

	v.SetDefault("dedupe.name_threshold", 0.85)
	v.SetDefault("dedupe.address_threshold", 0.80)
	v.SetDefault("dedupe.geo_radius_meters", 150)

	v.SetDefault("enrich.workers", 5)
	v.SetDefault("enrich.max_pages_per_lead", 3)
	v.SetDefault("enrich.fetch_timeout", 15*time.Second)
	v.SetDefault("enrich.user_agent", "Mozilla/5.0 (compatible; LeadHarvestBot/1.0)")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

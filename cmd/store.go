package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadharvest/internal/config"
	"github.com/sells-group/leadharvest/internal/provider"
	"github.com/sells-group/leadharvest/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadharvest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry constructs the provider registry from configuration. Keyed
// providers are registered only when a key is present; OSM needs none.
func buildRegistry() *provider.Registry {
	reg := provider.NewRegistry()

	reg.Register(provider.NewOSM(
		descriptor(cfg.Providers.OSM),
		quota(cfg.Providers.OSM),
	))
	if key := cfg.Providers.GooglePlaces.Key; key != "" {
		reg.Register(provider.NewGooglePlaces(key,
			descriptor(cfg.Providers.GooglePlaces),
			quota(cfg.Providers.GooglePlaces),
		))
	}
	if key := cfg.Providers.Geoapify.Key; key != "" {
		reg.Register(provider.NewGeoapify(key,
			descriptor(cfg.Providers.Geoapify),
			quota(cfg.Providers.Geoapify),
		))
	}
	if key := cfg.Providers.TomTom.Key; key != "" {
		reg.Register(provider.NewTomTom(key,
			descriptor(cfg.Providers.TomTom),
			quota(cfg.Providers.TomTom),
		))
	}
	return reg
}

func descriptor(pc config.ProviderConfig) provider.RateDescriptor {
	count := int(pc.RatePerSec)
	if count < 1 {
		count = 1
	}
	return provider.RateDescriptor{Count: count, Window: time.Second}
}

func quota(pc config.ProviderConfig) *provider.QuotaTracker {
	return provider.NewQuotaTracker(pc.DailyQuota, 24*time.Hour)
}

// Package provider defines the uniform search interface over external
// business-data sources and the pacing/quota machinery shared by all
// adapters. Adapters are registered explicitly at startup; there is no
// module-level registry.
package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/leadharvest/internal/model"
)

// RateDescriptor declares a provider's request pacing: Count requests per
// Window.
type RateDescriptor struct {
	Count  int
	Window time.Duration
}

// QuotaStatus reports period-quota consumption for a provider.
type QuotaStatus struct {
	Used   int
	Limit  int           // 0 means unlimited
	Period time.Duration // quota window, e.g. 24h
}

// Provider is the capability set every lead source adapter implements.
type Provider interface {
	// ID is the stable identifier used in run configuration.
	ID() string
	// Name is the human-readable source name recorded as provenance.
	Name() string
	// Search returns up to limit raw leads matching location and category.
	Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error)
	// RateLimit declares the adapter's request pacing.
	RateLimit() RateDescriptor
	// QuotaStatus reports current period-quota consumption.
	QuotaStatus() QuotaStatus
}

// Registry holds the providers available to a run. It is constructed at
// startup and passed into the collector.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns a provider by id, or nil if not registered.
func (r *Registry) Get(id string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[id]
}

// IDs returns all registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Select returns the providers matching the given ids. An empty ids slice
// selects every registered provider.
func (r *Registry) Select(ids []string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(ids) == 0 {
		out := make([]Provider, 0, len(r.providers))
		for _, id := range r.idsLocked() {
			out = append(out, r.providers[id])
		}
		return out
	}

	out := make([]Provider, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.providers[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

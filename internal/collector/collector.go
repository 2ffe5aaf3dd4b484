// Package collector fans a search request out to the selected providers
// concurrently and aggregates the raw leads with provenance.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/provider"
)

// Request describes one collection pass.
type Request struct {
	Location string
	Category string
	// Providers selects adapter ids; empty means every registered provider.
	Providers []string
	// Limits caps results per provider id; missing entries use the
	// adapter's default.
	Limits map[string]int
}

// ProviderFailure records one provider that was skipped.
type ProviderFailure struct {
	ProviderID string
	Err        error
}

// Result aggregates raw leads across providers. Within one provider result
// order is preserved; across providers leads are grouped in provider
// selection order.
type Result struct {
	Leads    []model.RawLead
	Failures []ProviderFailure
}

// AllFailedError is returned when no provider produced results. The
// orchestrator surfaces it as a fatal run error.
type AllFailedError struct {
	Failures []ProviderFailure
}

func (e *AllFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.ProviderID, f.Err))
	}
	return "collector: all providers failed: " + strings.Join(parts, "; ")
}

// Collector runs provider searches. The registry is injected; there is no
// global provider state.
type Collector struct {
	registry *provider.Registry
}

// New creates a Collector over the given registry.
func New(registry *provider.Registry) *Collector {
	return &Collector{registry: registry}
}

// Collect queries every selected provider concurrently. Individual provider
// failures are recorded and skipped; the error return is non-nil only when
// no provider was selected or every provider failed.
func (c *Collector) Collect(ctx context.Context, req Request) (*Result, error) {
	providers := c.registry.Select(req.Providers)
	if len(providers) == 0 {
		return nil, &AllFailedError{Failures: []ProviderFailure{
			{ProviderID: "*", Err: fmt.Errorf("no providers selected")},
		}}
	}

	log := zap.L().With(
		zap.String("location", req.Location),
		zap.String("category", req.Category),
	)
	log.Info("collector: starting", zap.Int("providers", len(providers)))

	type slot struct {
		order int
		leads []model.RawLead
	}

	var (
		mu       sync.Mutex
		slots    []slot
		failures []ProviderFailure
	)

	g, gCtx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			limit := req.Limits[p.ID()]
			leads, err := p.Search(gCtx, req.Location, req.Category, limit)
			if err != nil {
				log.Warn("collector: provider failed",
					zap.String("provider", p.ID()),
					zap.Error(err),
				)
				mu.Lock()
				failures = append(failures, ProviderFailure{ProviderID: p.ID(), Err: err})
				mu.Unlock()
				return nil
			}

			log.Info("collector: provider done",
				zap.String("provider", p.ID()),
				zap.Int("leads", len(leads)),
			)
			mu.Lock()
			slots = append(slots, slot{order: i, leads: leads})
			mu.Unlock()
			return nil
		})
	}
	// Worker errors are recorded per provider, never propagated.
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(slots) == 0 {
		return nil, &AllFailedError{Failures: failures}
	}

	// Deterministic aggregate order: provider selection order, then the
	// provider's own result order.
	sort.Slice(slots, func(a, b int) bool { return slots[a].order < slots[b].order })

	result := &Result{Failures: failures}
	for _, s := range slots {
		result.Leads = append(result.Leads, s.leads...)
	}

	log.Info("collector: complete",
		zap.Int("leads", len(result.Leads)),
		zap.Int("failed_providers", len(failures)),
	)
	return result, nil
}

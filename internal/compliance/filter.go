// Package compliance applies opt-out suppression to harvested contact data.
package compliance

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Lookup answers whether an address or its domain is on the opt-out list.
// The store implements it.
type Lookup interface {
	IsOptedOut(ctx context.Context, email string) (bool, error)
}

// Filter memoizes opt-out lookups for the lifetime of one run so repeated
// addresses hit the store once. It satisfies the enricher's Suppressor.
type Filter struct {
	lookup Lookup

	mu    sync.Mutex
	cache map[string]bool
}

// NewFilter builds a Filter over the given opt-out lookup.
func NewFilter(lookup Lookup) *Filter {
	return &Filter{lookup: lookup, cache: make(map[string]bool)}
}

// Suppressed reports whether the email must be withheld from output.
func (f *Filter) Suppressed(ctx context.Context, email string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return false, nil
	}

	f.mu.Lock()
	cached, ok := f.cache[key]
	f.mu.Unlock()
	if ok {
		return cached, nil
	}

	suppressed, err := f.lookup.IsOptedOut(ctx, key)
	if err != nil {
		return false, eris.Wrapf(err, "compliance: opt-out lookup %s", key)
	}

	f.mu.Lock()
	f.cache[key] = suppressed
	f.mu.Unlock()
	return suppressed, nil
}

//go:build !integration

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/provider"
)

type staticProvider struct {
	id    string
	name  string
	rate  provider.RateDescriptor
	quota provider.QuotaStatus
}

func (p *staticProvider) ID() string   { return p.id }
func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Search(context.Context, string, string, int) ([]model.RawLead, error) {
	return nil, nil
}

func (p *staticProvider) RateLimit() provider.RateDescriptor { return p.rate }
func (p *staticProvider) QuotaStatus() provider.QuotaStatus  { return p.quota }

func TestFormatProviders(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&staticProvider{
		id:   "osm",
		name: "OpenStreetMap",
		rate: provider.RateDescriptor{Count: 1, Window: time.Second},
	})
	reg.Register(&staticProvider{
		id:    "google_places",
		name:  "Google Places",
		rate:  provider.RateDescriptor{Count: 10, Window: time.Second},
		quota: provider.QuotaStatus{Used: 12, Limit: 1000, Period: 24 * time.Hour},
	})

	var buf bytes.Buffer
	formatProviders(&buf, reg)

	output := buf.String()
	assert.Contains(t, output, "osm")
	assert.Contains(t, output, "OpenStreetMap")
	assert.Contains(t, output, "unlimited")
	assert.Contains(t, output, "google_places")
	assert.Contains(t, output, "10/1s")
	assert.Contains(t, output, "12/1000 per 24h0m0s")
}

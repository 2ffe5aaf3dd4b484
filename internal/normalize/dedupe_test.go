package normalize

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadharvest/internal/config"
	"github.com/sells-group/leadharvest/internal/model"
)

var defaultPriority = []string{"google_places", "tomtom", "geoapify", "osm"}

func defaultDeduper() *Deduper {
	return NewDeduper(config.DedupeConfig{
		NameThreshold:    0.85,
		AddressThreshold: 0.80,
		GeoRadiusMeters:  150,
	}, defaultPriority)
}

// metersToLatDegrees converts a northward offset in meters to degrees of
// latitude, the inverse of the haversine distance along a meridian.
func metersToLatDegrees(m float64) float64 {
	return m / earthRadiusMeters * 180 / 3.141592653589793
}

func rawAt(name, providerID string, lat, lon float64) model.RawLead {
	return model.RawLead{
		BusinessName: name,
		Source:       providerID,
		ProviderID:   providerID,
		Latitude:     &lat,
		Longitude:    &lon,
	}
}

func TestDedupeMergesAcrossSources(t *testing.T) {
	lat, lon := 52.5200, 13.4050
	a := rawAt("Cafe Mitte", "osm", lat, lon)
	a.Phone = "+49 30 1234567"
	b := rawAt("Café Mitte GmbH", "google_places", lat+metersToLatDegrees(80), lon)
	b.Website = "cafe-mitte.de"

	leads := defaultDeduper().Dedupe("run-1", []model.RawLead{a, b})
	require.Len(t, leads, 1)

	lead := leads[0]
	// google_places outranks osm in the priority list.
	assert.Equal(t, "Café Mitte GmbH", lead.BusinessName)
	assert.Equal(t, "https://cafe-mitte.de", lead.Website)
	assert.Equal(t, "+49 30 1234567", lead.Phone)
	assert.ElementsMatch(t, []string{"osm", "google_places"}, lead.Sources)
	assert.Equal(t, "run-1", lead.RunID)

	require.NotNil(t, lead.Latitude)
	assert.InDelta(t, lat+metersToLatDegrees(40), *lead.Latitude, 1e-6)
}

func TestDedupeGeoRadiusBoundary(t *testing.T) {
	lat, lon := 52.5200, 13.4050
	a := rawAt("Cafe Mitte", "osm", lat, lon)
	b := rawAt("Cafe Mitte", "tomtom", lat+metersToLatDegrees(150), lon)
	dist := haversineMeters(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)

	atRadius := NewDeduper(config.DedupeConfig{
		NameThreshold: 0.85, AddressThreshold: 0.80, GeoRadiusMeters: dist,
	}, defaultPriority)
	require.Len(t, atRadius.Dedupe("r", []model.RawLead{a, b}), 1)

	insideRadius := NewDeduper(config.DedupeConfig{
		NameThreshold: 0.85, AddressThreshold: 0.80, GeoRadiusMeters: dist - 1,
	}, defaultPriority)
	require.Len(t, insideRadius.Dedupe("r", []model.RawLead{a, b}), 2)
}

func TestDedupeNameThresholdBoundary(t *testing.T) {
	lat, lon := 52.5200, 13.4050
	a := rawAt("Alpha Beta Gamma", "osm", lat, lon)
	b := rawAt("Alpha Beta Delta", "tomtom", lat, lon)
	sim := nameSimilarity(a.BusinessName, b.BusinessName)
	require.Greater(t, sim, 0.0)
	require.Less(t, sim, 1.0)

	atThreshold := NewDeduper(config.DedupeConfig{
		NameThreshold: sim, AddressThreshold: 0.80, GeoRadiusMeters: 150,
	}, defaultPriority)
	require.Len(t, atThreshold.Dedupe("r", []model.RawLead{a, b}), 1)

	aboveThreshold := NewDeduper(config.DedupeConfig{
		NameThreshold: sim + 1e-9, AddressThreshold: 0.80, GeoRadiusMeters: 150,
	}, defaultPriority)
	require.Len(t, aboveThreshold.Dedupe("r", []model.RawLead{a, b}), 2)
}

func TestDedupeAddressFallbackWithoutCoordinates(t *testing.T) {
	a := model.RawLead{
		BusinessName: "Bäckerei Schmidt",
		Address:      "Hauptstraße 12, 10115 Berlin",
		Source:       "osm",
		ProviderID:   "osm",
	}
	b := model.RawLead{
		BusinessName: "Backerei Schmidt",
		Address:      "Hauptstrasse 12, 10115 Berlin",
		Source:       "geoapify",
		ProviderID:   "geoapify",
	}
	leads := defaultDeduper().Dedupe("r", []model.RawLead{a, b})
	require.Len(t, leads, 1)
	assert.ElementsMatch(t, []string{"osm", "geoapify"}, leads[0].Sources)
}

func TestDedupeKeepsDistinctBusinesses(t *testing.T) {
	lat, lon := 52.5200, 13.4050
	a := rawAt("Cafe Mitte", "osm", lat, lon)
	b := rawAt("Pizzeria Roma", "osm", lat, lon)
	leads := defaultDeduper().Dedupe("r", []model.RawLead{a, b})
	require.Len(t, leads, 2)
}

func TestDedupeOrderInvariant(t *testing.T) {
	lat, lon := 52.5200, 13.4050
	raws := []model.RawLead{
		rawAt("Cafe Mitte", "osm", lat, lon),
		rawAt("Café Mitte GmbH", "google_places", lat+metersToLatDegrees(80), lon),
		rawAt("Cafe Mitte", "tomtom", lat+metersToLatDegrees(120), lon),
		rawAt("Pizzeria Roma", "osm", lat, lon),
		rawAt("Pizzeria Roma", "google_places", lat+metersToLatDegrees(50), lon),
		rawAt("Buchladen am Park", "geoapify", lat+1, lon+1),
	}

	fingerprint := func(leads []model.Lead) []string {
		out := make([]string, 0, len(leads))
		for _, l := range leads {
			srcs := append([]string(nil), l.Sources...)
			sort.Strings(srcs)
			out = append(out, fmt.Sprintf("%s|%s", l.BusinessName, strings.Join(srcs, ",")))
		}
		sort.Strings(out)
		return out
	}

	baseline := fingerprint(defaultDeduper().Dedupe("r", raws))
	require.Len(t, baseline, 3)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.RawLead(nil), raws...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, baseline, fingerprint(defaultDeduper().Dedupe("r", shuffled)))
	}
}

func TestNameSimilarityFoldsDiacriticsAndSuffixes(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("Cafe Mitte", "Café Mitte GmbH"))
	assert.Equal(t, 1.0, nameSimilarity("BÄCKEREI MÜLLER", "Bäckerei Müller GmbH"))
	assert.Less(t, nameSimilarity("Cafe Mitte", "Steakhouse Sued"), 0.5)
}

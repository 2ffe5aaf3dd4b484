// Package normalize clusters raw provider records into canonical leads
// using fuzzy name, address and geographic matching.
package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/leadharvest/internal/config"
	"github.com/sells-group/leadharvest/internal/model"
)

// Deduper clusters raw leads and merges each cluster into one canonical
// lead. Cluster membership does not depend on input order.
type Deduper struct {
	cfg config.DedupeConfig
	// priority orders providers for field-merge precedence; earlier wins.
	priority map[string]int
	now      func() time.Time
}

// NewDeduper builds a Deduper from the matching thresholds and the
// provider priority list.
func NewDeduper(cfg config.DedupeConfig, providerPriority []string) *Deduper {
	prio := make(map[string]int, len(providerPriority))
	for i, id := range providerPriority {
		prio[id] = i
	}
	return &Deduper{cfg: cfg, priority: prio, now: time.Now}
}

// Dedupe clusters the raw leads and returns one canonical lead per cluster,
// sorted by business name for a stable output order.
func (d *Deduper) Dedupe(runID string, raws []model.RawLead) []model.Lead {
	if len(raws) == 0 {
		return nil
	}

	uf := newUnionFind(len(raws))
	for i := 0; i < len(raws); i++ {
		for j := i + 1; j < len(raws); j++ {
			if d.sameBusiness(raws[i], raws[j]) {
				uf.union(i, j)
			}
		}
	}

	clusters := make(map[int][]model.RawLead)
	for i := range raws {
		root := uf.find(i)
		clusters[root] = append(clusters[root], raws[i])
	}

	leads := make([]model.Lead, 0, len(clusters))
	for _, members := range clusters {
		leads = append(leads, d.merge(runID, members))
	}
	sort.Slice(leads, func(a, b int) bool {
		if leads[a].BusinessName != leads[b].BusinessName {
			return leads[a].BusinessName < leads[b].BusinessName
		}
		return leads[a].Address < leads[b].Address
	})

	zap.L().Info("normalize: deduplicated leads",
		zap.Int("raw", len(raws)),
		zap.Int("canonical", len(leads)),
	)
	return leads
}

// sameBusiness applies the cluster criteria: name similarity above the
// threshold, plus either coordinate proximity or, when coordinates are
// missing on either side, address similarity.
func (d *Deduper) sameBusiness(a, b model.RawLead) bool {
	if a.BusinessName == "" || b.BusinessName == "" {
		return false
	}
	if nameSimilarity(a.BusinessName, b.BusinessName) < d.cfg.NameThreshold {
		return false
	}
	if a.HasCoordinates() && b.HasCoordinates() {
		dist := haversineMeters(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		return dist <= d.cfg.GeoRadiusMeters
	}
	if a.Address == "" || b.Address == "" {
		return false
	}
	return addressSimilarity(a.Address, b.Address) >= d.cfg.AddressThreshold
}

// merge builds the canonical lead for one cluster. Field precedence follows
// provider priority; coordinates are averaged; sources is the union of
// contributing provider names in precedence order.
func (d *Deduper) merge(runID string, members []model.RawLead) model.Lead {
	sort.SliceStable(members, func(a, b int) bool {
		ra, rb := d.rank(members[a].ProviderID), d.rank(members[b].ProviderID)
		if ra != rb {
			return ra < rb
		}
		if members[a].ProviderID != members[b].ProviderID {
			return members[a].ProviderID < members[b].ProviderID
		}
		return members[a].RecordID < members[b].RecordID
	})

	lead := model.Lead{
		ID:        uuid.New().String(),
		RunID:     runID,
		CreatedAt: d.now().UTC(),
	}

	var (
		latSum, lonSum float64
		coordCount     int
		seen           = make(map[string]struct{}, len(members))
	)
	for _, m := range members {
		if lead.BusinessName == "" {
			lead.BusinessName = strings.TrimSpace(m.BusinessName)
		}
		if lead.Address == "" {
			lead.Address = strings.TrimSpace(m.Address)
		}
		if lead.Website == "" {
			lead.Website = canonicalWebsite(m.Website)
		}
		if lead.Email == "" {
			lead.Email = strings.ToLower(strings.TrimSpace(m.Email))
		}
		if lead.Phone == "" {
			lead.Phone = strings.TrimSpace(m.Phone)
		}
		if m.HasCoordinates() {
			latSum += *m.Latitude
			lonSum += *m.Longitude
			coordCount++
		}
		if _, ok := seen[m.Source]; !ok && m.Source != "" {
			seen[m.Source] = struct{}{}
			lead.Sources = append(lead.Sources, m.Source)
		}
	}
	if coordCount > 0 {
		lat := latSum / float64(coordCount)
		lon := lonSum / float64(coordCount)
		lead.Latitude = &lat
		lead.Longitude = &lon
	}
	return lead
}

func (d *Deduper) rank(providerID string) int {
	if r, ok := d.priority[providerID]; ok {
		return r
	}
	return len(d.priority)
}

// canonicalWebsite trims a website value and defaults the scheme to https
// so the enricher always gets a parseable absolute URL.
func canonicalWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// unionFind is a standard disjoint-set forest with path compression and
// union by rank. Final membership is independent of union call order.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

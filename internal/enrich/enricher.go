// Package enrich crawls a bounded set of pages per lead website and
// extracts additional contact signals, honoring each domain's robots.txt.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadharvest/internal/config"
	"github.com/sells-group/leadharvest/internal/model"
)

const maxPageBytes = 2 << 20

// Suppressor reports whether an email address or its domain has opted out
// of contact. Suppressed addresses never appear in enrichment output.
type Suppressor interface {
	Suppressed(ctx context.Context, email string) (bool, error)
}

// Enricher crawls lead websites with a bounded worker pool.
type Enricher struct {
	cfg        config.EnrichConfig
	client     *http.Client
	robots     *robotsCache
	suppressor Suppressor
}

// Option customizes an Enricher.
type Option func(*Enricher)

// WithHTTPClient overrides the crawl HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Enricher) { e.client = client }
}

// WithSuppressor installs an opt-out filter.
func WithSuppressor(s Suppressor) Option {
	return func(e *Enricher) { e.suppressor = s }
}

// New builds an Enricher from the crawl configuration.
func New(cfg config.EnrichConfig, opts ...Option) *Enricher {
	e := &Enricher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.robots = newRobotsCache(e.client, cfg.UserAgent)
	return e
}

// EnrichAll enriches every lead with a website concurrently and returns new
// lead values in input order. Individual page failures are recorded on the
// lead; only context cancellation aborts the stage.
func (e *Enricher) EnrichAll(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	out := make([]model.Lead, len(leads))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, lead := range leads {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = e.enrichLead(gCtx, lead)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// enrichLead crawls one lead's website. The input lead is not mutated.
func (e *Enricher) enrichLead(ctx context.Context, lead model.Lead) model.Lead {
	if lead.Website == "" {
		return lead
	}
	log := zap.L().With(
		zap.String("lead", lead.BusinessName),
		zap.String("website", lead.Website),
	)

	base, err := url.Parse(lead.Website)
	if err != nil || base.Host == "" {
		lead.Enrichment.Failures = append(lead.Enrichment.Failures,
			fmt.Sprintf("invalid website url %q", lead.Website))
		return lead
	}

	if !e.robots.Allowed(ctx, base) {
		// Policy-blocked sites are skipped, not failed.
		log.Info("enrich: website blocked by robots.txt, skipping")
		return lead
	}

	data := lead.Enrichment
	doc, err := e.fetchPage(ctx, base)
	if err != nil {
		log.Warn("enrich: homepage fetch failed", zap.Error(err))
		data.Failures = append(data.Failures, fmt.Sprintf("%s: %v", base.String(), err))
		lead.Enrichment = data
		return lead
	}
	extractContacts(doc, base, &data)
	data.PagesCrawled++

	for _, page := range candidatePages(doc, base, e.cfg.MaxPagesPerLead-1) {
		if ctx.Err() != nil {
			break
		}
		if !e.robots.Allowed(ctx, page) {
			continue
		}
		pageDoc, err := e.fetchPage(ctx, page)
		if err != nil {
			log.Debug("enrich: page fetch failed", zap.String("page", page.String()), zap.Error(err))
			data.Failures = append(data.Failures, fmt.Sprintf("%s: %v", page.String(), err))
			continue
		}
		extractContacts(pageDoc, page, &data)
		data.PagesCrawled++
	}

	e.filterKnown(&data, lead)
	e.filterSuppressed(ctx, &data)
	lead.Enrichment = data

	log.Info("enrich: lead enriched",
		zap.Int("pages", data.PagesCrawled),
		zap.Int("emails", len(data.Emails)),
		zap.Int("phones", len(data.Phones)),
		zap.Int("social_links", len(data.SocialLinks)),
	)
	return lead
}

func (e *Enricher) fetchPage(ctx context.Context, u *url.URL) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: building page request")
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: fetching page")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, eris.Errorf("enrich: page returned status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: parsing page")
	}
	return doc, nil
}

// filterKnown drops contacts the lead already carries so enrichment only
// reports new signals.
func (e *Enricher) filterKnown(data *model.EnrichmentData, lead model.Lead) {
	if lead.Email != "" {
		known := strings.ToLower(lead.Email)
		data.Emails = deleteMatching(data.Emails, func(v string) bool { return v == known })
	}
	if lead.Phone != "" {
		known := normalizePhone(lead.Phone)
		data.Phones = deleteMatching(data.Phones, func(v string) bool { return v == known })
	}
}

func (e *Enricher) filterSuppressed(ctx context.Context, data *model.EnrichmentData) {
	if e.suppressor == nil {
		return
	}
	data.Emails = deleteMatching(data.Emails, func(email string) bool {
		suppressed, err := e.suppressor.Suppressed(ctx, email)
		if err != nil {
			zap.L().Warn("enrich: opt-out lookup failed", zap.String("email", email), zap.Error(err))
			return false
		}
		return suppressed
	})
}

func deleteMatching(values []string, match func(string) bool) []string {
	kept := values[:0]
	for _, v := range values {
		if !match(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

package enrich

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsCache fetches and caches per-host robots.txt rules for the lifetime
// of one enrichment run.
type robotsCache struct {
	client    *http.Client
	userAgent string
	cache     sync.Map
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{client: client, userAgent: userAgent}
}

// Allowed reports whether the crawl policy permits fetching u. Fetch or
// parse failures of robots.txt default to allow.
func (r *robotsCache) Allowed(ctx context.Context, u *url.URL) bool {
	data, err := r.load(ctx, u)
	if err != nil {
		zap.L().Debug("enrich: robots fetch failed, allowing",
			zap.String("host", u.Host),
			zap.Error(err),
		)
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return group.Test(p)
}

func (r *robotsCache) load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(u.Scheme + "://" + u.Host)
	if cached, ok := r.cache.Load(hostKey); ok {
		return cached.(*robotstxt.RobotsData), nil
	}

	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: building robots request")
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: fetching robots.txt")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: reading robots.txt")
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: parsing robots.txt")
	}
	r.cache.Store(hostKey, data)
	return data, nil
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/resilience"
)

const defaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OSMProvider searches OpenStreetMap via the Overpass API. It needs no API
// key, which makes it the default source.
type OSMProvider struct {
	baseURL string
	http    *http.Client
	limiter *Limiter
	quota   *QuotaTracker
	retry   resilience.RetryConfig
}

// OSMOption configures the OSM provider.
type OSMOption func(*OSMProvider)

// WithOSMBaseURL overrides the Overpass endpoint.
func WithOSMBaseURL(u string) OSMOption {
	return func(p *OSMProvider) { p.baseURL = u }
}

// WithOSMHTTPClient overrides the default http.Client.
func WithOSMHTTPClient(hc *http.Client) OSMOption {
	return func(p *OSMProvider) { p.http = hc }
}

// NewOSM creates the OpenStreetMap Overpass provider.
func NewOSM(rd RateDescriptor, quota *QuotaTracker, opts ...OSMOption) *OSMProvider {
	p := &OSMProvider{
		baseURL: defaultOverpassURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		quota:   quota,
		retry:   resilience.DefaultRetryConfig(),
	}
	p.limiter = NewLimiter(p.ID(), rd, quota)
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *OSMProvider) ID() string   { return "osm" }
func (p *OSMProvider) Name() string { return "OpenStreetMap" }

func (p *OSMProvider) RateLimit() RateDescriptor {
	return RateDescriptor{Count: 2, Window: time.Second}
}

func (p *OSMProvider) QuotaStatus() QuotaStatus {
	if p.quota == nil {
		return QuotaStatus{}
	}
	return p.quota.Status()
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	ID     int64             `json:"id"`
	Type   string            `json:"type"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Search queries the Overpass API for businesses in the named area.
func (p *OSMProvider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	query := p.buildQuery(location, category)

	data, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*overpassResponse, error) {
		return p.post(ctx, query)
	})
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, NewError(p.ID(), ErrTransient, err)
	}

	leads := make([]model.RawLead, 0, len(data.Elements))
	for _, el := range data.Elements {
		lead, ok := p.parseElement(el)
		if !ok {
			continue
		}
		if limit > 0 && len(leads) >= limit {
			break
		}
		leads = append(leads, lead)
	}

	zap.L().Debug("osm: search complete",
		zap.String("location", location),
		zap.String("category", category),
		zap.Int("leads", len(leads)),
	)
	return leads, nil
}

func (p *OSMProvider) post(ctx context.Context, query string) (*overpassResponse, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "osm: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "osm: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, eris.Wrap(err, "osm: read body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(fmt.Errorf("osm: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(p.ID(), ErrInvalidResponse, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed overpassResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(p.ID(), ErrInvalidResponse, eris.Wrap(err, "decode"))
	}
	return &parsed, nil
}

// buildQuery assembles an Overpass QL query searching the named area for the
// category's tag filter across nodes, ways, and relations.
func (p *OSMProvider) buildQuery(location, category string) string {
	tagFilter := categoryFilter(p.ID(), category)
	if tagFilter == "" {
		tagFilter = "amenity~'restaurant|cafe|bar|fast_food'"
	}

	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n")
	fmt.Fprintf(&b, "area[name=%q]->.searchArea;\n(\n", location)
	fmt.Fprintf(&b, "  node[%s](area.searchArea);\n", tagFilter)
	fmt.Fprintf(&b, "  way[%s](area.searchArea);\n", tagFilter)
	fmt.Fprintf(&b, "  relation[%s](area.searchArea);\n", tagFilter)
	b.WriteString(");\nout center;\n")
	return b.String()
}

func (p *OSMProvider) parseElement(el overpassElement) (model.RawLead, bool) {
	name := el.Tags["name"]
	if name == "" {
		return model.RawLead{}, false
	}

	lat, lon := el.Lat, el.Lon
	if lat == nil && el.Center != nil {
		lat, lon = &el.Center.Lat, &el.Center.Lon
	}

	var addrParts []string
	if street := el.Tags["addr:street"]; street != "" {
		if num := el.Tags["addr:housenumber"]; num != "" {
			street = street + " " + num
		}
		addrParts = append(addrParts, street)
	}
	if city := el.Tags["addr:city"]; city != "" {
		addrParts = append(addrParts, city)
	}
	if postcode := el.Tags["addr:postcode"]; postcode != "" {
		addrParts = append(addrParts, postcode)
	}

	phone := el.Tags["phone"]
	if phone == "" {
		phone = el.Tags["contact:phone"]
	}
	website := el.Tags["website"]
	if website == "" {
		website = el.Tags["contact:website"]
	}
	email := el.Tags["email"]
	if email == "" {
		email = el.Tags["contact:email"]
	}

	return model.RawLead{
		BusinessName: name,
		Address:      strings.Join(addrParts, ", "),
		Latitude:     lat,
		Longitude:    lon,
		Phone:        phone,
		Website:      website,
		Email:        email,
		Source:       p.Name(),
		ProviderID:   p.ID(),
		RecordID:     el.Type + "/" + strconv.FormatInt(el.ID, 10),
	}, true
}

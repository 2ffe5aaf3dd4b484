package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/resilience"
)

const defaultGeoapifyBaseURL = "https://api.geoapify.com"

// geoapifySearchRadiusMeters bounds the circle filter around the geocoded
// location.
const geoapifySearchRadiusMeters = 10000

// GeoapifyProvider searches the Geoapify Places API (OSM-based). Searches
// geocode the location first and then query places within a circle around
// it, so each Search consumes two rate tokens.
type GeoapifyProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *Limiter
	quota   *QuotaTracker
	retry   resilience.RetryConfig
}

// GeoapifyOption configures the provider.
type GeoapifyOption func(*GeoapifyProvider)

// WithGeoapifyBaseURL overrides the API base URL.
func WithGeoapifyBaseURL(u string) GeoapifyOption {
	return func(p *GeoapifyProvider) { p.baseURL = u }
}

// WithGeoapifyHTTPClient overrides the default http.Client.
func WithGeoapifyHTTPClient(hc *http.Client) GeoapifyOption {
	return func(p *GeoapifyProvider) { p.http = hc }
}

// NewGeoapify creates the Geoapify provider.
func NewGeoapify(apiKey string, rd RateDescriptor, quota *QuotaTracker, opts ...GeoapifyOption) *GeoapifyProvider {
	p := &GeoapifyProvider{
		apiKey:  apiKey,
		baseURL: defaultGeoapifyBaseURL,
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

func (p *GeoapifyProvider) ID() string   { return "geoapify" }
func (p *GeoapifyProvider) Name() string { return "Geoapify" }

func (p *GeoapifyProvider) RateLimit() RateDescriptor {
	return RateDescriptor{Count: 5, Window: time.Second}
}

func (p *GeoapifyProvider) QuotaStatus() QuotaStatus {
	if p.quota == nil {
		return QuotaStatus{}
	}
	return p.quota.Status()
}

type geoapifyFeatureCollection struct {
	Features []geoapifyFeature `json:"features"`
}

type geoapifyFeature struct {
	Properties struct {
		PlaceID  string `json:"place_id"`
		Name     string `json:"name"`
		Street   string `json:"street"`
		City     string `json:"city"`
		Postcode string `json:"postcode"`
		Contact  struct {
			Phone string `json:"phone"`
			Email string `json:"email"`
		} `json:"contact"`
		Website string `json:"website"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Search geocodes the location and lists places around it.
func (p *GeoapifyProvider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	lat, lon, err := p.geocode(ctx, location)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, NewError(p.ID(), ErrTransient, err)
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	cat := categoryFilter(p.ID(), category)
	if cat == "" {
		cat = "catering.restaurant"
	}
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{
		"categories": {cat},
		"filter":     {fmt.Sprintf("circle:%f,%f,%d", lon, lat, geoapifySearchRadiusMeters)},
		"limit":      {fmt.Sprint(limit)},
		"apiKey":     {p.apiKey},
	}

	fc, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*geoapifyFeatureCollection, error) {
		var out geoapifyFeatureCollection
		if err := p.getJSON(ctx, "/v2/places?"+params.Encode(), &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, NewError(p.ID(), ErrTransient, err)
	}

	leads := make([]model.RawLead, 0, len(fc.Features))
	for _, f := range fc.Features {
		props := f.Properties
		if props.Name == "" {
			continue
		}

		var latp, lonp *float64
		if len(f.Geometry.Coordinates) >= 2 {
			lo, la := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
			lonp, latp = &lo, &la
		}

		addr := ""
		for _, part := range []string{props.Street, props.City, props.Postcode} {
			if part == "" {
				continue
			}
			if addr != "" {
				addr += ", "
			}
			addr += part
		}

		leads = append(leads, model.RawLead{
			BusinessName: props.Name,
			Address:      addr,
			Latitude:     latp,
			Longitude:    lonp,
			Phone:        props.Contact.Phone,
			Website:      props.Website,
			Email:        props.Contact.Email,
			Source:       p.Name(),
			ProviderID:   p.ID(),
			RecordID:     props.PlaceID,
		})
	}

	return leads, nil
}

type geoapifyGeocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (p *GeoapifyProvider) geocode(ctx context.Context, location string) (lat, lon float64, err error) {
	params := url.Values{
		"text":   {location},
		"limit":  {"1"},
		"apiKey": {p.apiKey},
	}

	var out geoapifyGeocodeResponse
	if err := p.getJSON(ctx, "/v1/geocode/search?"+params.Encode(), &out); err != nil {
		return 0, 0, err
	}
	if len(out.Features) == 0 || len(out.Features[0].Geometry.Coordinates) < 2 {
		return 0, 0, NewError(p.ID(), ErrInvalidResponse, fmt.Errorf("could not geocode location %q", location))
	}
	coords := out.Features[0].Geometry.Coordinates
	return coords[1], coords[0], nil
}

func (p *GeoapifyProvider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "geoapify: create request")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "geoapify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return eris.Wrap(err, "geoapify: read body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(fmt.Errorf("geoapify: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return NewError(p.ID(), ErrInvalidResponse, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return NewError(p.ID(), ErrInvalidResponse, eris.Wrap(err, "decode"))
	}
	return nil
}

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

const defaultTomTomBaseURL = "https://api.tomtom.com/search/2/poiSearch"

// TomTomProvider searches the TomTom POI Search API.
type TomTomProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *Limiter
	quota   *QuotaTracker
	retry   resilience.RetryConfig
}

// TomTomOption configures the provider.
type TomTomOption func(*TomTomProvider)

// WithTomTomBaseURL overrides the API base URL.
func WithTomTomBaseURL(u string) TomTomOption {
	return func(p *TomTomProvider) { p.baseURL = u }
}

// WithTomTomHTTPClient overrides the default http.Client.
func WithTomTomHTTPClient(hc *http.Client) TomTomOption {
	return func(p *TomTomProvider) { p.http = hc }
}

// NewTomTom creates the TomTom provider.
func NewTomTom(apiKey string, rd RateDescriptor, quota *QuotaTracker, opts ...TomTomOption) *TomTomProvider {
	p := &TomTomProvider{
		apiKey:  apiKey,
		baseURL: defaultTomTomBaseURL,
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

func (p *TomTomProvider) ID() string   { return "tomtom" }
func (p *TomTomProvider) Name() string { return "TomTom" }

func (p *TomTomProvider) RateLimit() RateDescriptor {
	return RateDescriptor{Count: 5, Window: time.Second}
}

func (p *TomTomProvider) QuotaStatus() QuotaStatus {
	if p.quota == nil {
		return QuotaStatus{}
	}
	return p.quota.Status()
}

type tomtomSearchResponse struct {
	Results []tomtomResult `json:"results"`
}

type tomtomResult struct {
	ID  string `json:"id"`
	POI struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		URL   string `json:"url"`
	} `json:"poi"`
	Position struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"position"`
	Address struct {
		FreeformAddress string `json:"freeformAddress"`
	} `json:"address"`
}

// Search runs a POI search for "category in location".
func (p *TomTomProvider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("%s in %s", category, location)
	params := url.Values{
		"key":       {p.apiKey},
		"limit":     {fmt.Sprint(limit)},
		"typeahead": {"false"},
	}

	data, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*tomtomSearchResponse, error) {
		return p.get(ctx, query, params)
	})
	if err != nil {
		if _, ok := KindOf(err); ok {
			return nil, err
		}
		return nil, NewError(p.ID(), ErrTransient, err)
	}

	leads := make([]model.RawLead, 0, len(data.Results))
	for _, result := range data.Results {
		if result.POI.Name == "" {
			continue
		}
		lat, lon := result.Position.Lat, result.Position.Lon
		leads = append(leads, model.RawLead{
			BusinessName: result.POI.Name,
			Address:      result.Address.FreeformAddress,
			Latitude:     &lat,
			Longitude:    &lon,
			Phone:        result.POI.Phone,
			Website:      result.POI.URL,
			Source:       p.Name(),
			ProviderID:   p.ID(),
			RecordID:     result.ID,
		})
		if len(leads) >= limit {
			break
		}
	}

	return leads, nil
}

func (p *TomTomProvider) get(ctx context.Context, query string, params url.Values) (*tomtomSearchResponse, error) {
	u := p.baseURL + "/" + url.PathEscape(query) + ".json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: create request")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: read body")
	}

	if resp.StatusCode == http.StatusForbidden {
		// TomTom reports daily quota exhaustion as 403.
		return nil, NewError(p.ID(), ErrQuotaExceeded, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(fmt.Errorf("tomtom: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(p.ID(), ErrInvalidResponse, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed tomtomSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(p.ID(), ErrInvalidResponse, eris.Wrap(err, "decode"))
	}
	return &parsed, nil
}

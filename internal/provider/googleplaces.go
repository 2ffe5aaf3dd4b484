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
	"go.uber.org/zap"

	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/resilience"
)

const defaultPlacesBaseURL = "https://maps.googleapis.com/maps/api/place"

// maxPlacesPages caps text-search pagination; the API returns at most three
// pages of twenty results.
const maxPlacesPages = 3

// GooglePlacesProvider searches the Google Places Text Search API. Text
// search results carry no contact details, so leads from this source lean on
// enrichment for email and phone.
type GooglePlacesProvider struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *Limiter
	quota    *QuotaTracker
	retry    resilience.RetryConfig
	pageWait time.Duration
}

// GooglePlacesOption configures the provider.
type GooglePlacesOption func(*GooglePlacesProvider)

// WithPlacesBaseURL overrides the API base URL.
func WithPlacesBaseURL(u string) GooglePlacesOption {
	return func(p *GooglePlacesProvider) { p.baseURL = u }
}

// WithPlacesHTTPClient overrides the default http.Client.
func WithPlacesHTTPClient(hc *http.Client) GooglePlacesOption {
	return func(p *GooglePlacesProvider) { p.http = hc }
}

// WithPlacesPageWait overrides the delay before requesting a next page.
// Google requires a short pause before a page token becomes valid.
func WithPlacesPageWait(d time.Duration) GooglePlacesOption {
	return func(p *GooglePlacesProvider) { p.pageWait = d }
}

// NewGooglePlaces creates the Google Places provider.
func NewGooglePlaces(apiKey string, rd RateDescriptor, quota *QuotaTracker, opts ...GooglePlacesOption) *GooglePlacesProvider {
	p := &GooglePlacesProvider{
		apiKey:   apiKey,
		baseURL:  defaultPlacesBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		quota:    quota,
		retry:    resilience.DefaultRetryConfig(),
		pageWait: 2 * time.Second,
	}
	p.limiter = NewLimiter(p.ID(), rd, quota)
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *GooglePlacesProvider) ID() string   { return "google_places" }
func (p *GooglePlacesProvider) Name() string { return "GooglePlaces" }

func (p *GooglePlacesProvider) RateLimit() RateDescriptor {
	return RateDescriptor{Count: 10, Window: time.Second}
}

func (p *GooglePlacesProvider) QuotaStatus() QuotaStatus {
	if p.quota == nil {
		return QuotaStatus{}
	}
	return p.quota.Status()
}

type placesTextSearchResponse struct {
	Results       []placesResult `json:"results"`
	NextPageToken string         `json:"next_page_token"`
	Status        string         `json:"status"`
}

type placesResult struct {
	Name             string `json:"name"`
	PlaceID          string `json:"place_id"`
	FormattedAddress string `json:"formatted_address"`
	Rating           float64 `json:"rating"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// Search runs a paginated text search for "category in location".
func (p *GooglePlacesProvider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	query := fmt.Sprintf("%s in %s", category, location)

	var leads []model.RawLead
	pageToken := ""

	for page := 0; page < maxPlacesPages; page++ {
		if err := p.limiter.Acquire(ctx); err != nil {
			return leads, err
		}

		data, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*placesTextSearchResponse, error) {
			return p.textSearch(ctx, query, pageToken)
		})
		if err != nil {
			if len(leads) > 0 {
				// Partial pages are still usable.
				zap.L().Warn("google_places: pagination aborted",
					zap.Int("page", page),
					zap.Error(err),
				)
				return leads, nil
			}
			if _, ok := KindOf(err); ok {
				return nil, err
			}
			return nil, NewError(p.ID(), ErrTransient, err)
		}

		if data.Status == "OVER_QUERY_LIMIT" {
			return leads, NewError(p.ID(), ErrQuotaExceeded, fmt.Errorf("api status %s", data.Status))
		}
		if data.Status != "OK" && data.Status != "ZERO_RESULTS" {
			return leads, NewError(p.ID(), ErrInvalidResponse, fmt.Errorf("api status %s", data.Status))
		}

		for _, place := range data.Results {
			if place.Name == "" {
				continue
			}
			lat, lng := place.Geometry.Location.Lat, place.Geometry.Location.Lng
			leads = append(leads, model.RawLead{
				BusinessName: place.Name,
				Address:      place.FormattedAddress,
				Latitude:     &lat,
				Longitude:    &lng,
				Source:       p.Name(),
				ProviderID:   p.ID(),
				RecordID:     place.PlaceID,
			})
			if limit > 0 && len(leads) >= limit {
				return leads[:limit], nil
			}
		}

		pageToken = data.NextPageToken
		if pageToken == "" {
			break
		}

		// The next page token needs a moment to activate.
		select {
		case <-ctx.Done():
			return leads, ctx.Err()
		case <-time.After(p.pageWait):
		}
	}

	return leads, nil
}

func (p *GooglePlacesProvider) textSearch(ctx context.Context, query, pageToken string) (*placesTextSearchResponse, error) {
	params := url.Values{
		"query": {query},
		"key":   {p.apiKey},
	}
	if pageToken != "" {
		params.Set("pagetoken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/textsearch/json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google_places: create request")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google_places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "google_places: read body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(fmt.Errorf("google_places: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(p.ID(), ErrInvalidResponse, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed placesTextSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(p.ID(), ErrInvalidResponse, eris.Wrap(err, "decode"))
	}
	return &parsed, nil
}

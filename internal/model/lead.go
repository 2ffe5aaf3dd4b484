package model

import "time"

// RawLead is a single business record as returned by one provider, before
// normalization. It is owned by the collector until the normalizer consumes
// it and is never mutated after creation.
type RawLead struct {
	BusinessName string         `json:"business_name"`
	Address      string         `json:"address,omitempty"`
	Latitude     *float64       `json:"latitude,omitempty"`
	Longitude    *float64       `json:"longitude,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Website      string         `json:"website,omitempty"`
	Email        string         `json:"email,omitempty"`
	Source       string         `json:"source"`
	ProviderID   string         `json:"provider_id"`
	RecordID     string         `json:"record_id,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (r RawLead) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// EnrichmentData holds contact signals extracted from a lead's website.
type EnrichmentData struct {
	Emails      []string          `json:"emails,omitempty"`
	Phones      []string          `json:"phones,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
	PagesCrawled int              `json:"pages_crawled,omitempty"`
	Failures    []string          `json:"failures,omitempty"`
}

// Empty reports whether no signals were extracted.
func (e EnrichmentData) Empty() bool {
	return len(e.Emails) == 0 && len(e.Phones) == 0 && len(e.SocialLinks) == 0
}

// Lead is the canonical, deduplicated business record produced by the
// normalizer and enriched downstream. Sources is always non-empty and ordered
// by provider priority.
type Lead struct {
	ID              string         `json:"id"`
	RunID           string         `json:"run_id"`
	BusinessName    string         `json:"business_name"`
	Address         string         `json:"address,omitempty"`
	Website         string         `json:"website,omitempty"`
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Latitude        *float64       `json:"latitude,omitempty"`
	Longitude       *float64       `json:"longitude,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	Sources         []string       `json:"sources"`
	Enrichment      EnrichmentData `json:"enrichment_data"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

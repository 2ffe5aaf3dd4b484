// Package scorer computes a deterministic confidence score for a lead from
// its data completeness. Scoring is pure, no I/O and no stored state.
package scorer

import (
	"strings"

	"github.com/sells-group/leadharvest/internal/model"
)

// Component weights. The score is the achieved weight over the maximum
// achievable weight, so it always lands in [0,1].
const (
	weightWebsite       = 0.3
	weightBusinessEmail = 0.4
	weightPersonalEmail = 0.2
	weightPhone         = 0.2
	weightAddress       = 0.1
	weightSocial        = 0.1
	weightMultiSource   = 0.1

	maxWeight = weightWebsite + weightBusinessEmail + weightPhone +
		weightAddress + weightSocial + weightMultiSource
)

// personalEmailDomains are consumer mail providers. An address on one of
// these still counts, just at a lower weight than a business domain.
var personalEmailDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"icloud.com":  {},
	"aol.com":     {},
	"gmx.de":      {},
	"web.de":      {},
	"freenet.de":  {},
}

// Score returns the lead's confidence score in [0,1]. Identical input
// always yields an identical score.
func Score(lead model.Lead) float64 {
	score := 0.0

	if lead.Website != "" {
		score += weightWebsite
	}
	if lead.Address != "" {
		score += weightAddress
	}

	switch {
	case hasBusinessEmail(lead):
		score += weightBusinessEmail
	case lead.Email != "" || len(lead.Enrichment.Emails) > 0:
		score += weightPersonalEmail
	}

	if lead.Phone != "" || len(lead.Enrichment.Phones) > 0 {
		score += weightPhone
	}
	if len(lead.Enrichment.SocialLinks) > 0 {
		score += weightSocial
	}
	if len(lead.Sources) > 1 {
		score += weightMultiSource
	}

	return score / maxWeight
}

// BestEmail picks the preferred outreach address: the lead's own business
// address first, then a business address found during enrichment, then any
// address at all. Empty when the lead has none.
func BestEmail(lead model.Lead) string {
	if lead.Email != "" && !IsPersonalEmail(lead.Email) {
		return lead.Email
	}
	for _, e := range lead.Enrichment.Emails {
		if !IsPersonalEmail(e) {
			return e
		}
	}
	if lead.Email != "" {
		return lead.Email
	}
	if len(lead.Enrichment.Emails) > 0 {
		return lead.Enrichment.Emails[0]
	}
	return ""
}

// IsPersonalEmail reports whether the address uses a consumer mail domain.
func IsPersonalEmail(email string) bool {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	_, personal := personalEmailDomains[strings.ToLower(domain)]
	return personal
}

func hasBusinessEmail(lead model.Lead) bool {
	if lead.Email != "" && !IsPersonalEmail(lead.Email) {
		return true
	}
	for _, e := range lead.Enrichment.Emails {
		if !IsPersonalEmail(e) {
			return true
		}
	}
	return false
}

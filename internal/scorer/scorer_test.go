package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadharvest/internal/model"
)

func TestScoreEmptyLead(t *testing.T) {
	assert.Zero(t, Score(model.Lead{Sources: []string{"osm"}}))
}

func TestScoreFullLead(t *testing.T) {
	lead := model.Lead{
		BusinessName: "Cafe Mitte",
		Address:      "Hauptstraße 12, Berlin",
		Website:      "https://cafe-mitte.de",
		Email:        "info@cafe-mitte.de",
		Phone:        "+49301234567",
		Sources:      []string{"osm", "google_places"},
		Enrichment: model.EnrichmentData{
			SocialLinks: map[string]string{"instagram": "https://instagram.com/cafemitte"},
		},
	}
	assert.InDelta(t, 1.0, Score(lead), 1e-9)
}

func TestScorePersonalEmailWeighsLess(t *testing.T) {
	business := model.Lead{Email: "info@cafe-mitte.de"}
	personal := model.Lead{Email: "cafemitte@gmail.com"}
	assert.Greater(t, Score(business), Score(personal))
	assert.Greater(t, Score(personal), 0.0)
}

func TestScoreBusinessEmailFromEnrichment(t *testing.T) {
	lead := model.Lead{
		Email:      "owner@gmail.com",
		Enrichment: model.EnrichmentData{Emails: []string{"kontakt@firma.de"}},
	}
	personalOnly := model.Lead{Email: "owner@gmail.com"}
	assert.Greater(t, Score(lead), Score(personalOnly))
}

func TestScoreMonotonicity(t *testing.T) {
	base := model.Lead{BusinessName: "X", Sources: []string{"osm"}}

	steps := []func(model.Lead) model.Lead{
		func(l model.Lead) model.Lead { l.Address = "Hauptstraße 1"; return l },
		func(l model.Lead) model.Lead { l.Phone = "+49301234567"; return l },
		func(l model.Lead) model.Lead { l.Website = "https://x.de"; return l },
		func(l model.Lead) model.Lead { l.Email = "info@x.de"; return l },
		func(l model.Lead) model.Lead {
			l.Enrichment.SocialLinks = map[string]string{"facebook": "https://facebook.com/x"}
			return l
		},
		func(l model.Lead) model.Lead { l.Sources = append(l.Sources, "tomtom"); return l },
	}

	prev := Score(base)
	lead := base
	for _, step := range steps {
		lead = step(lead)
		next := Score(lead)
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
	assert.InDelta(t, 1.0, prev, 1e-9)
}

func TestScoreDeterministic(t *testing.T) {
	lead := model.Lead{
		Website: "https://x.de",
		Email:   "hi@gmx.de",
		Sources: []string{"osm", "tomtom"},
	}
	assert.Equal(t, Score(lead), Score(lead))
}

func TestBestEmail(t *testing.T) {
	t.Run("prefers own business address", func(t *testing.T) {
		lead := model.Lead{
			Email:      "info@firma.de",
			Enrichment: model.EnrichmentData{Emails: []string{"chef@firma.de"}},
		}
		assert.Equal(t, "info@firma.de", BestEmail(lead))
	})

	t.Run("prefers enriched business over personal own", func(t *testing.T) {
		lead := model.Lead{
			Email:      "owner@gmail.com",
			Enrichment: model.EnrichmentData{Emails: []string{"kontakt@firma.de"}},
		}
		assert.Equal(t, "kontakt@firma.de", BestEmail(lead))
	})

	t.Run("falls back to personal", func(t *testing.T) {
		assert.Equal(t, "owner@gmail.com", BestEmail(model.Lead{Email: "owner@gmail.com"}))
	})

	t.Run("empty without any email", func(t *testing.T) {
		assert.Empty(t, BestEmail(model.Lead{}))
	})
}

func TestIsPersonalEmail(t *testing.T) {
	assert.True(t, IsPersonalEmail("hi@GMAIL.com"))
	assert.True(t, IsPersonalEmail("x@web.de"))
	assert.False(t, IsPersonalEmail("info@cafe-mitte.de"))
	assert.False(t, IsPersonalEmail("not-an-email"))
}

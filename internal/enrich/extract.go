package enrich

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/leadharvest/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// obfuscatedEmailPattern matches "info (at) example (dot) de" style
	// spellings, with or without brackets.
	obfuscatedEmailPattern = regexp.MustCompile(
		`(?i)\b([a-z0-9._%+-]+)\s*[\[(]?\s*at\s*[\])]?\s+([a-z0-9][a-z0-9-]*)\s*[\[(]?\s*dot\s*[\])]?\s+([a-z]{2,})\b`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+49[\s\-]?\d{1,5}[\s\-]?\d{1,9}`),
		regexp.MustCompile(`\b0\d{2,5}[\s\-/]?\d{2,9}\b`),
		regexp.MustCompile(`\+\d{1,3}[\s\-]?\d{1,14}`),
	}

	socialPatterns = map[string]*regexp.Regexp{
		"instagram": regexp.MustCompile(`^https?://(?:www\.)?instagram\.com/[A-Za-z0-9_.]+`),
		"facebook":  regexp.MustCompile(`^https?://(?:www\.)?facebook\.com/[A-Za-z0-9.]+`),
		"linkedin":  regexp.MustCompile(`^https?://(?:www\.)?linkedin\.com/(?:company|in)/[A-Za-z0-9\-]+`),
		"twitter":   regexp.MustCompile(`^https?://(?:www\.)?(?:twitter|x)\.com/[A-Za-z0-9_]+`),
		"tiktok":    regexp.MustCompile(`^https?://(?:www\.)?tiktok\.com/@[A-Za-z0-9_.]+`),
	}

	// junkEmailFragments filters tracker, placeholder and no-reply addresses.
	junkEmailFragments = []string{
		"example.com", "test.com", "domain.com",
		"@sentry", "@google-analytics", "noreply@", "no-reply@",
	}
)

// extractContacts pulls emails, phone numbers and social profile links out
// of one parsed page, merging the findings into data.
func extractContacts(doc *goquery.Document, base *url.URL, data *model.EnrichmentData) {
	text := doc.Text()

	emails := map[string]struct{}{}
	for _, m := range emailPattern.FindAllString(text, -1) {
		emails[strings.ToLower(m)] = struct{}{}
	}
	for _, m := range obfuscatedEmailPattern.FindAllStringSubmatch(text, -1) {
		emails[strings.ToLower(m[1]+"@"+m[2]+"."+m[3])] = struct{}{}
	}

	phones := map[string]struct{}{}
	for _, p := range phonePatterns {
		for _, m := range p.FindAllString(text, -1) {
			phones[normalizePhone(m)] = struct{}{}
		}
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		switch {
		case strings.HasPrefix(href, "mailto:"):
			addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
			if emailPattern.MatchString(addr) {
				emails[strings.ToLower(addr)] = struct{}{}
			}
		case strings.HasPrefix(href, "tel:"):
			phones[normalizePhone(strings.TrimPrefix(href, "tel:"))] = struct{}{}
		default:
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			full := base.ResolveReference(ref).String()
			for platform, pattern := range socialPatterns {
				if pattern.MatchString(full) {
					if data.SocialLinks == nil {
						data.SocialLinks = map[string]string{}
					}
					if _, ok := data.SocialLinks[platform]; !ok {
						data.SocialLinks[platform] = full
					}
					break
				}
			}
		}
	})

	data.Emails = appendUnique(data.Emails, sortedKeys(emails), isJunkEmail)
	data.Phones = appendUnique(data.Phones, sortedKeys(phones), func(p string) bool {
		return len(p) < 8
	})
}

func isJunkEmail(email string) bool {
	for _, junk := range junkEmailFragments {
		if strings.Contains(email, junk) {
			return true
		}
	}
	return false
}

// normalizePhone strips separators, keeping digits and a leading plus.
func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' || r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(dst, src []string, skip func(string) bool) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if skip(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

// contactPageKeywords pick likely contact pages from homepage links.
var contactPageKeywords = []string{
	"kontakt", "contact", "impressum", "imprint", "about", "ueber-uns", "uber-uns",
}

// candidatePages returns additional same-host pages worth crawling, found by
// scanning homepage links for contact-ish keywords.
func candidatePages(doc *goquery.Document, base *url.URL, max int) []*url.URL {
	if max <= 0 {
		return nil
	}
	var pages []*url.URL
	seen := map[string]struct{}{base.String(): {}}

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(href)
		if err != nil || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return true
		}
		full := base.ResolveReference(ref)
		if full.Host != base.Host {
			return true
		}
		full.Fragment = ""

		target := strings.ToLower(full.Path + " " + sel.Text())
		matched := false
		for _, kw := range contactPageKeywords {
			if strings.Contains(target, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
		if _, ok := seen[full.String()]; ok {
			return true
		}
		seen[full.String()] = struct{}{}
		pages = append(pages, full)
		return len(pages) < max
	})
	return pages
}

package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are company-form tokens that carry no identity signal and
// are dropped before comparing business names.
var legalSuffixes = map[string]struct{}{
	"gmbh": {}, "mbh": {}, "ag": {}, "ug": {}, "kg": {}, "ohg": {},
	"gbr": {}, "ev": {}, "co": {}, "ltd": {}, "llc": {}, "inc": {},
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldString lowercases, strips diacritics and replaces punctuation with
// spaces so "Café-Mitte" and "cafe mitte" compare equal.
func foldString(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// nameTokens folds a business name and drops legal-form suffixes. The
// original tokens are kept when stripping would remove everything.
func nameTokens(name string) []string {
	tokens := strings.Fields(foldString(name))
	kept := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := legalSuffixes[t]; ok {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return tokens
	}
	return kept
}

// nameSimilarity scores two business names in [0,1]. It takes the better of
// a token-set Dice coefficient and a character-bigram Dice coefficient, so
// both reordered tokens and small typos score high.
func nameSimilarity(a, b string) float64 {
	ta, tb := nameTokens(a), nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	tok := diceTokens(ta, tb)
	big := diceBigrams(strings.Join(ta, " "), strings.Join(tb, " "))
	if big > tok {
		return big
	}
	return tok
}

// addressSimilarity scores two folded address strings via bigram Dice.
func addressSimilarity(a, b string) float64 {
	fa, fb := foldString(a), foldString(b)
	if fa == "" || fb == "" {
		return 0
	}
	return diceBigrams(fa, fb)
}

func diceTokens(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	common := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(setA)+len(setB))
}

func diceBigrams(a, b string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	common := 0
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			if m < n {
				n = m
			}
			common += n
		}
	}
	total := 0
	for _, n := range ba {
		total += n
	}
	for _, n := range bb {
		total += n
	}
	return 2 * float64(common) / float64(total)
}

func bigrams(s string) map[string]int {
	rs := []rune(s)
	if len(rs) < 2 {
		return nil
	}
	grams := make(map[string]int, len(rs)-1)
	for i := 0; i+1 < len(rs); i++ {
		grams[string(rs[i:i+2])]++
	}
	return grams
}

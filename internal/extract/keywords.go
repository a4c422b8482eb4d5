// Package extract turns fetched pages into enrichment candidates. Extractors
// only report what they observe; scoring decides what the signals are worth.
package extract

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Profile is the keyword vocabulary applied to one content type.
type Profile struct {
	// Include keywords earn a scoring bonus.
	Include []string
	// Exclude keywords drop the image before it becomes a candidate.
	Exclude []string
	// Opposite keywords belong to another content type and are penalized.
	Opposite []string
}

var (
	noise = []string{"icon", "banner", "favicon", "sprite", "avatar", "badge"}

	profiles = map[enrich.ContentType]Profile{
		enrich.ContentLabel: {
			Include:  []string{"wine", "label", "bottle", "vintage", "front", "product"},
			Exclude:  append([]string{"logo"}, noise...),
			Opposite: []string{"vineyard", "cellar", "landscape"},
		},
		enrich.ContentWineryPhoto: {
			Include:  []string{"winery", "vineyard", "cellar", "estate", "chateau", "domaine"},
			Exclude:  append([]string{"logo"}, noise...),
			Opposite: []string{"bottle", "label", "vintage"},
		},
		enrich.ContentLogo: {
			Include:  []string{"logo", "brand", "symbol", "ci"},
			Exclude:  []string{"favicon", "sprite", "avatar", "badge"},
			Opposite: []string{"bottle", "label", "vintage", "product"},
		},
	}

	nameStopWords = map[string]struct{}{
		"the": {}, "and": {}, "wine": {}, "wines": {}, "winery": {}, "estate": {},
		"와인": {}, "와이너리": {},
	}
)

// ProfileFor returns the keyword profile for an image content type.
func ProfileFor(ct enrich.ContentType) Profile {
	return profiles[ct]
}

// haystack joins the lowercase, unescaped, NFC-normalized metadata the keyword
// checks run on. Decomposed Hangul from macOS filenames is composed here.
func haystack(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
		b.WriteString(strings.ToLower(norm.NFC.String(p)))
		b.WriteByte(' ')
	}
	return b.String()
}

func matchKeywords(hay string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if kw == "ci" {
			// Too short for substring matching; only whole tokens count.
			if containsToken(hay, kw) {
				out = append(out, kw)
			}
			continue
		}
		if strings.Contains(hay, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func containsToken(hay, token string) bool {
	for _, f := range strings.FieldsFunc(hay, isSeparator) {
		if f == token {
			return true
		}
	}
	return false
}

// nameTokens splits both localized names into tokens worth matching.
func nameTokens(name enrich.LocalizedName) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, field := range []string{name.Primary, name.Secondary} {
		for _, tok := range strings.FieldsFunc(strings.ToLower(norm.NFC.String(field)), isSeparator) {
			if !significant(tok) {
				continue
			}
			if _, stop := nameStopWords[tok]; stop {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}

// significant keeps Hangul tokens of two or more syllables and Latin tokens of three or more letters.
func significant(tok string) bool {
	runes := []rune(tok)
	for _, r := range runes {
		if unicode.Is(unicode.Hangul, r) {
			return len(runes) >= 2
		}
	}
	return len(runes) >= 3
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func matchesName(hay string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(hay, tok) {
			return true
		}
	}
	return false
}

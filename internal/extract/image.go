package extract

import (
	"strings"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// ImageExtractor finds product labels or winery photos.
type ImageExtractor struct {
	contentType enrich.ContentType
	profile     Profile
}

var _ enrich.Extractor = (*ImageExtractor)(nil)

// NewImageExtractor builds an extractor for label or winery_photo.
func NewImageExtractor(ct enrich.ContentType) *ImageExtractor {
	return &ImageExtractor{contentType: ct, profile: ProfileFor(ct)}
}

// ContentType implements enrich.Extractor.
func (e *ImageExtractor) ContentType() enrich.ContentType { return e.contentType }

// Extract implements enrich.Extractor.
func (e *ImageExtractor) Extract(doc enrich.Document, subject enrich.Subject, origin enrich.Origin) []enrich.Candidate {
	tokens := nameTokens(subject.Name)
	var payloads []enrich.ImagePayload
	for _, ref := range collectImages(doc, "img, picture source[srcset]", true) {
		if isSVG(ref.URL) {
			continue
		}
		hay := haystack(pathOf(ref.URL), ref.Alt, ref.Class, ref.ID)
		if len(matchKeywords(hay, e.profile.Exclude)) > 0 {
			continue
		}
		payloads = append(payloads, enrich.ImagePayload{
			URL:       ref.URL,
			Alt:       ref.Alt,
			Class:     ref.Class,
			ID:        ref.ID,
			Width:     ref.Width,
			Height:    ref.Height,
			Region:    ref.Region,
			Keywords:  matchKeywords(hay, e.profile.Include),
			Excluded:  matchKeywords(hay, e.profile.Opposite),
			NameMatch: matchesName(hay, tokens),
		})
	}
	return toCandidates(e.contentType, origin, payloads)
}

// LogoExtractor finds brand logos. Images in page chrome or logo-named
// containers are preferred; the whole page is scanned only when none exist.
type LogoExtractor struct {
	profile Profile
}

var _ enrich.Extractor = (*LogoExtractor)(nil)

// NewLogoExtractor builds the logo extractor.
func NewLogoExtractor() *LogoExtractor {
	return &LogoExtractor{profile: ProfileFor(enrich.ContentLogo)}
}

// ContentType implements enrich.Extractor.
func (e *LogoExtractor) ContentType() enrich.ContentType { return enrich.ContentLogo }

const logoRegionSelector = "header img, nav img, footer img, " +
	"[class*=logo] img, [class*=Logo] img, [id*=logo] img, [id*=Logo] img, " +
	"img[class*=logo], img[class*=Logo], img[id*=logo], img[id*=Logo]"

// Extract implements enrich.Extractor. Favicons declared with <link rel=icon>
// are never considered.
func (e *LogoExtractor) Extract(doc enrich.Document, subject enrich.Subject, origin enrich.Origin) []enrich.Candidate {
	tokens := nameTokens(subject.Name)

	payloads := e.filter(collectImages(doc, logoRegionSelector, false), tokens, false)
	if len(payloads) == 0 {
		payloads = e.filter(collectImages(doc, "img", false), tokens, true)
	}
	return toCandidates(enrich.ContentLogo, origin, payloads)
}

func (e *LogoExtractor) filter(refs []imageRef, tokens []string, requireKeyword bool) []enrich.ImagePayload {
	var out []enrich.ImagePayload
	for _, ref := range refs {
		hay := haystack(pathOf(ref.URL), ref.Alt, ref.Class, ref.ID)
		if len(matchKeywords(hay, e.profile.Exclude)) > 0 {
			continue
		}
		if requireKeyword && !strings.Contains(hay, "logo") {
			continue
		}
		out = append(out, enrich.ImagePayload{
			URL:       ref.URL,
			Alt:       ref.Alt,
			Class:     ref.Class,
			ID:        ref.ID,
			Width:     ref.Width,
			Height:    ref.Height,
			Region:    ref.Region,
			Keywords:  matchKeywords(hay, e.profile.Include),
			Excluded:  matchKeywords(hay, e.profile.Opposite),
			NameMatch: matchesName(hay, tokens),
		})
	}
	return out
}

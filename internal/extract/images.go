package extract

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// imageRef is one image reference found in a page, before any filtering.
type imageRef struct {
	URL    string
	Alt    string
	Class  string
	ID     string
	Width  int
	Height int
	Region string
}

var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original", "src"}

const regionLogoSelector = "[class*=logo], [class*=Logo], [id*=logo], [id*=Logo]"

// collectImages returns the image references of a selector in document order,
// resolved against the document base and deduplicated by normalized URL.
func collectImages(doc enrich.Document, selector string, withMeta bool) []imageRef {
	base := doc.BaseURL()
	seen := map[string]struct{}{}
	var out []imageRef

	add := func(ref imageRef) {
		key, err := enrich.NormalizeURL(ref.URL)
		if err != nil {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}

	for _, el := range doc.FindAll(selector) {
		raw, srcsetWidth := imageSource(el)
		abs, ok := enrich.ResolveURL(base, raw)
		if !ok {
			continue
		}
		ref := imageRef{
			URL:    abs,
			Alt:    el.Attr("alt"),
			Class:  el.Attr("class"),
			ID:     el.Attr("id"),
			Width:  dimension(el.Attr("width")),
			Height: dimension(el.Attr("height")),
			Region: regionOf(el),
		}
		if ref.Width == 0 {
			ref.Width = srcsetWidth
		}
		add(ref)
	}

	if withMeta {
		for _, el := range doc.FindAll(`meta[property="og:image"], meta[name="og:image"]`) {
			abs, ok := enrich.ResolveURL(base, el.Attr("content"))
			if !ok {
				continue
			}
			add(imageRef{URL: abs, Region: "meta"})
		}
	}
	return out
}

// imageSource picks the most useful source attribute. Lazy-load attributes win
// over src because src is often a placeholder.
func imageSource(el enrich.Element) (string, int) {
	for _, attr := range lazyAttrs {
		if v := el.Attr(attr); v != "" && !strings.HasPrefix(v, "data:") {
			return v, 0
		}
	}
	for _, attr := range []string{"data-srcset", "srcset"} {
		if v := el.Attr(attr); v != "" {
			return firstSrcset(v)
		}
	}
	return "", 0
}

// firstSrcset returns the first candidate of a srcset and its width descriptor.
func firstSrcset(v string) (string, int) {
	first := strings.TrimSpace(strings.Split(v, ",")[0])
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "", 0
	}
	width := 0
	if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
		width, _ = strconv.Atoi(strings.TrimSuffix(fields[1], "w"))
	}
	return fields[0], width
}

func dimension(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func regionOf(el enrich.Element) string {
	switch {
	case el.Closest(regionLogoSelector):
		return "logo"
	case el.Closest("header"):
		return "header"
	case el.Closest("nav"):
		return "nav"
	case el.Closest("footer"):
		return "footer"
	default:
		return ""
	}
}

// pathOf drops scheme and host so a keyword in a domain name does not match
// every image on the site.
func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

func isSVG(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".svg")
}

func toCandidates(ct enrich.ContentType, origin enrich.Origin, payloads []enrich.ImagePayload) []enrich.Candidate {
	out := make([]enrich.Candidate, 0, len(payloads))
	for i, p := range payloads {
		out = append(out, enrich.Candidate{
			ContentType: ct,
			Source:      origin.Tag,
			SourceName:  origin.Name,
			Seq:         origin.SeqBase + i,
			Payload:     p,
		})
	}
	return out
}

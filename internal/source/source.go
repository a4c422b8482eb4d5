// Package source describes where the pipeline looks for content and renders
// per-subject URLs from templates.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Template placeholders.
const (
	PlaceholderName     = "name"
	PlaceholderNameEN   = "name_en"
	PlaceholderHomepage = "homepage"
	PlaceholderSlug     = "slug"
)

// seqStride separates the Seq ranges of consecutive sources.
const seqStride = 1000

var placeholderRE = regexp.MustCompile(`\{([a-z_]+)\}`)

// ErrInvalidSource is returned for malformed source definitions.
var ErrInvalidSource = errors.New("invalid source")

// Source is one place to look for content.
type Source struct {
	Name         string
	Tag          enrich.SourceTag
	ContentTypes []enrich.ContentType
	URLTemplate  string
}

// Serves reports whether the source is consulted for the content type.
func (s Source) Serves(ct enrich.ContentType) bool {
	for _, c := range s.ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// Render fills the template for a subject. It returns false when a placeholder
// has no value for this subject.
func (s Source) Render(subject enrich.Subject) (string, bool) {
	missing := false
	rendered := placeholderRE.ReplaceAllStringFunc(s.URLTemplate, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := value(subject, key)
		if !ok {
			missing = true
			return ""
		}
		return v
	})
	if missing {
		return "", false
	}
	if _, ok := enrich.ResolveURL(nil, rendered); !ok {
		return "", false
	}
	return rendered, true
}

func value(subject enrich.Subject, key string) (string, bool) {
	switch key {
	case PlaceholderName:
		return escape(subject.Name.Best())
	case PlaceholderNameEN:
		return escape(subject.Name.Secondary)
	case PlaceholderSlug:
		return escape(subject.Hints.Slug)
	case PlaceholderHomepage:
		home := strings.TrimSpace(subject.Hints.Homepage)
		if home == "" {
			return "", false
		}
		if !strings.Contains(home, "://") {
			home = "https://" + home
		}
		return home, true
	default:
		return "", false
	}
}

func escape(v string) (string, bool) {
	v = strings.TrimSpace(norm.NFC.String(v))
	if v == "" {
		return "", false
	}
	return url.QueryEscape(v), true
}

// Target is a rendered URL for one subject together with its origin.
type Target struct {
	URL    string
	Origin enrich.Origin
}

// Catalogue is the ordered list of configured sources.
type Catalogue struct {
	sources []Source
}

// NewCatalogue validates the sources and keeps their order, which is also the
// order candidates are first seen in.
func NewCatalogue(sources []Source) (*Catalogue, error) {
	names := map[string]struct{}{}
	for _, s := range sources {
		if err := validate(s); err != nil {
			return nil, err
		}
		if _, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidSource, s.Name)
		}
		names[s.Name] = struct{}{}
	}
	return &Catalogue{sources: append([]Source(nil), sources...)}, nil
}

func validate(s Source) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSource)
	}
	if s.Tag.TrustWeight() == 0 {
		return fmt.Errorf("%w: %s: unknown tag %q", ErrInvalidSource, s.Name, s.Tag)
	}
	if len(s.ContentTypes) == 0 {
		return fmt.Errorf("%w: %s: no content types", ErrInvalidSource, s.Name)
	}
	for _, ct := range s.ContentTypes {
		if _, ok := enrich.ParseContentType(string(ct)); !ok {
			return fmt.Errorf("%w: %s: unknown content type %q", ErrInvalidSource, s.Name, ct)
		}
	}
	if s.URLTemplate == "" {
		return fmt.Errorf("%w: %s: url template is required", ErrInvalidSource, s.Name)
	}
	for _, m := range placeholderRE.FindAllStringSubmatch(s.URLTemplate, -1) {
		switch m[1] {
		case PlaceholderName, PlaceholderNameEN, PlaceholderHomepage, PlaceholderSlug:
		default:
			return fmt.Errorf("%w: %s: unknown placeholder {%s}", ErrInvalidSource, s.Name, m[1])
		}
	}
	return nil
}

// Sources returns a copy of the configured sources.
func (c *Catalogue) Sources() []Source {
	return append([]Source(nil), c.sources...)
}

// Targets renders every source serving the content type for the subject.
// Sources lacking a required hint are skipped; identical URLs are visited once.
func (c *Catalogue) Targets(subject enrich.Subject, ct enrich.ContentType) []Target {
	var out []Target
	seen := map[string]struct{}{}
	for i, s := range c.sources {
		if !s.Serves(ct) {
			continue
		}
		u, ok := s.Render(subject)
		if !ok {
			continue
		}
		key, err := enrich.NormalizeURL(u)
		if err != nil {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Target{
			URL:    u,
			Origin: enrich.Origin{Name: s.Name, Tag: s.Tag, SeqBase: i * seqStride},
		})
	}
	return out
}

// Defaults is the built-in catalogue.
func Defaults() []Source {
	return []Source{
		{
			Name:         "official",
			Tag:          enrich.SourceOfficial,
			ContentTypes: []enrich.ContentType{enrich.ContentLabel, enrich.ContentLogo, enrich.ContentWineryPhoto, enrich.ContentPrice},
			URLTemplate:  "{homepage}",
		},
		{
			Name:         "naver-shopping",
			Tag:          enrich.SourceMarketplace,
			ContentTypes: []enrich.ContentType{enrich.ContentLabel, enrich.ContentPrice},
			URLTemplate:  "https://search.shopping.naver.com/search/all?query={name}",
		},
		{
			Name:         "bing-images",
			Tag:          enrich.SourceSearch,
			ContentTypes: []enrich.ContentType{enrich.ContentLabel},
			URLTemplate:  "https://www.bing.com/images/search?q={name}+wine+bottle",
		},
		{
			Name:         "bing-images-logo",
			Tag:          enrich.SourceSearch,
			ContentTypes: []enrich.ContentType{enrich.ContentLogo},
			URLTemplate:  "https://www.bing.com/images/search?q={name}+winery+logo",
		},
	}
}

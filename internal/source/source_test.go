package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

func wine() enrich.Subject {
	return enrich.Subject{
		ID:   "w1",
		Kind: enrich.KindWine,
		Name: enrich.LocalizedName{Primary: "몬테스 알파", Secondary: "Montes Alpha"},
	}
}

func TestRenderEscapesNames(t *testing.T) {
	t.Parallel()

	s := Source{Name: "m", Tag: enrich.SourceMarketplace, URLTemplate: "https://m.example/search?q={name}&en={name_en}"}
	got, ok := s.Render(wine())
	require.True(t, ok)
	assert.Equal(t, "https://m.example/search?q=%EB%AA%AC%ED%85%8C%EC%8A%A4+%EC%95%8C%ED%8C%8C&en=Montes+Alpha", got)
}

func TestRenderNormalizesToNFC(t *testing.T) {
	t.Parallel()

	// "몬" spelled as decomposed jamo.
	decomposed := "\u1106\u1169\u11ab"
	s := Source{Name: "m", Tag: enrich.SourceMarketplace, URLTemplate: "https://m.example/?q={name}"}
	got, ok := s.Render(enrich.Subject{Name: enrich.LocalizedName{Primary: decomposed}})
	require.True(t, ok)
	assert.Equal(t, "https://m.example/?q=%EB%AA%AC", got)
}

func TestRenderSkipsMissingHints(t *testing.T) {
	t.Parallel()

	s := Source{Name: "o", Tag: enrich.SourceOfficial, URLTemplate: "{homepage}"}
	_, ok := s.Render(wine())
	assert.False(t, ok)

	sub := wine()
	sub.Hints.Homepage = "montes.cl/en"
	got, ok := s.Render(sub)
	require.True(t, ok)
	assert.Equal(t, "https://montes.cl/en", got)

	slug := Source{Name: "s", Tag: enrich.SourceSearch, URLTemplate: "https://x.example/w/{slug}"}
	_, ok = slug.Render(wine())
	assert.False(t, ok)
}

func TestNewCatalogueValidates(t *testing.T) {
	t.Parallel()

	_, err := NewCatalogue(Defaults())
	require.NoError(t, err)

	cases := []Source{
		{Tag: enrich.SourceSearch, ContentTypes: []enrich.ContentType{enrich.ContentLabel}, URLTemplate: "https://x/{name}"},
		{Name: "a", Tag: "friends", ContentTypes: []enrich.ContentType{enrich.ContentLabel}, URLTemplate: "https://x/{name}"},
		{Name: "a", Tag: enrich.SourceSearch, URLTemplate: "https://x/{name}"},
		{Name: "a", Tag: enrich.SourceSearch, ContentTypes: []enrich.ContentType{"menu"}, URLTemplate: "https://x/{name}"},
		{Name: "a", Tag: enrich.SourceSearch, ContentTypes: []enrich.ContentType{enrich.ContentLabel}, URLTemplate: "https://x/{vintage}"},
	}
	for _, s := range cases {
		_, err := NewCatalogue([]Source{s})
		assert.ErrorIs(t, err, ErrInvalidSource, "%+v", s)
	}

	dup := Source{Name: "a", Tag: enrich.SourceSearch, ContentTypes: []enrich.ContentType{enrich.ContentLabel}, URLTemplate: "https://x/{name}"}
	_, err = NewCatalogue([]Source{dup, dup})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestTargetsFiltersAndOrders(t *testing.T) {
	t.Parallel()

	cat, err := NewCatalogue(Defaults())
	require.NoError(t, err)

	sub := wine()
	targets := cat.Targets(sub, enrich.ContentLabel)
	require.Len(t, targets, 2, "official is skipped without a homepage")
	assert.Equal(t, "naver-shopping", targets[0].Origin.Name)
	assert.Equal(t, enrich.SourceMarketplace, targets[0].Origin.Tag)
	assert.Equal(t, "bing-images", targets[1].Origin.Name)
	assert.Less(t, targets[0].Origin.SeqBase, targets[1].Origin.SeqBase)

	sub.Hints.Homepage = "https://montes.cl"
	targets = cat.Targets(sub, enrich.ContentPrice)
	require.Len(t, targets, 2)
	assert.Equal(t, "official", targets[0].Origin.Name)
	assert.Equal(t, "https://montes.cl", targets[0].URL)
}

func TestTargetsDeduplicatesURLs(t *testing.T) {
	t.Parallel()

	a := Source{Name: "a", Tag: enrich.SourceOfficial, ContentTypes: []enrich.ContentType{enrich.ContentLogo}, URLTemplate: "{homepage}"}
	b := Source{Name: "b", Tag: enrich.SourceSearch, ContentTypes: []enrich.ContentType{enrich.ContentLogo}, URLTemplate: "{homepage}"}
	cat, err := NewCatalogue([]Source{a, b})
	require.NoError(t, err)

	sub := enrich.Subject{Kind: enrich.KindWinery, Hints: enrich.SourceHints{Homepage: "https://winery.example"}}
	targets := cat.Targets(sub, enrich.ContentLogo)
	require.Len(t, targets, 1)
	assert.Equal(t, "a", targets[0].Origin.Name)
}

func TestDefaultsOfficialServesEveryContentType(t *testing.T) {
	t.Parallel()

	official := Defaults()[0]
	require.Equal(t, enrich.SourceOfficial, official.Tag)
	for _, ct := range []enrich.ContentType{enrich.ContentLabel, enrich.ContentLogo, enrich.ContentWineryPhoto, enrich.ContentPrice} {
		assert.True(t, official.Serves(ct), ct)
	}
	for _, s := range Defaults()[1:] {
		assert.False(t, s.Serves(enrich.ContentWineryPhoto), s.Name)
	}
}

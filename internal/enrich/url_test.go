package enrich

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://CDN.Example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"drops default port", "http://example.com:80/a.jpg", "http://example.com/a.jpg"},
		{"drops fragment", "https://example.com/a.jpg#top", "https://example.com/a.jpg"},
		{"sorts query", "https://example.com/a.jpg?w=2&h=1", "https://example.com/a.jpg?h=1&w=2"},
		{"keeps other ports", "https://Example.com:8443/a.jpg", "https://example.com:8443/a.jpg"},
		{"drops tracking params", "https://example.com/a.jpg?utm_source=x&UTM_Medium=y&v=3", "https://example.com/a.jpg?v=3"},
		{"keeps ipv6 brackets", "http://[::1]:80/a.jpg", "http://[::1]/a.jpg"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://winery.example/about/index.html")
	require.NoError(t, err)

	got, ok := ResolveURL(base, "../img/label.jpg")
	require.True(t, ok)
	require.Equal(t, "https://winery.example/img/label.jpg", got)

	got, ok = ResolveURL(base, "//cdn.example/x.png")
	require.True(t, ok)
	require.Equal(t, "https://cdn.example/x.png", got)

	_, ok = ResolveURL(base, "data:image/png;base64,AAAA")
	require.False(t, ok)
	_, ok = ResolveURL(base, "  ")
	require.False(t, ok)
	_, ok = ResolveURL(base, "mailto:hi@winery.example")
	require.False(t, ok)
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"mixed case https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, HostOf(tc.input))
		})
	}
}

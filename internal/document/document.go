// Package document adapts goquery to the enrich.Document interface so
// extractors never touch the HTML parser directly.
package document

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Document is a parsed HTML page.
type Document struct {
	doc  *goquery.Document
	base *url.URL

	textOnce sync.Once
	text     string
}

var _ enrich.Document = (*Document)(nil)

// Parse builds a Document from a response body. baseURL is the address the
// body was fetched from; a <base href> in the page takes precedence.
func Parse(baseURL string, body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}
	return &Document{doc: doc, base: base}, nil
}

// ParseResponse decodes a fetched page to UTF-8 using its declared or sniffed
// charset, then parses it. Many Korean shops still serve EUC-KR.
func ParseResponse(resp enrich.FetchResponse) (*Document, error) {
	body := resp.Body
	if enc, name, _ := charset.DetermineEncoding(body, resp.ContentType); name != "utf-8" {
		decoded, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", name, err)
		}
		body = decoded
	}
	return Parse(resp.URL, body)
}

// FindAll returns every element matching the CSS selector in document order.
func (d *Document) FindAll(selector string) []enrich.Element {
	sel := d.doc.Find(selector)
	out := make([]enrich.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})
	return out
}

// Text returns the visible text of the page with whitespace collapsed. Text
// nodes are separated by a space so adjacent cells do not run together.
func (d *Document) Text() string {
	d.textOnce.Do(func() {
		var b strings.Builder
		for _, n := range d.doc.Nodes {
			collectText(n, &b)
		}
		d.text = strings.Join(strings.Fields(b.String()), " ")
	})
	return d.text
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// BaseURL returns the URL relative references resolve against.
func (d *Document) BaseURL() *url.URL {
	u := *d.base
	return &u
}

type element struct {
	sel *goquery.Selection
}

func (e element) Attr(name string) string {
	return strings.TrimSpace(e.sel.AttrOr(name, ""))
}

func (e element) Text() string {
	return strings.Join(strings.Fields(e.sel.Text()), " ")
}

func (e element) Closest(selector string) bool {
	return e.sel.Closest(selector).Length() > 0
}

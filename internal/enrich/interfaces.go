package enrich

import (
	"context"
	"net/url"
	"time"
)

// Fetcher retrieves a URL. Implementations retry transient failures and return
// a *FetchError once a source is considered unavailable.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Prober performs a lightweight existence check against a URL.
type Prober interface {
	Probe(ctx context.Context, url string) (ProbeResult, error)
}

// Document is a parsed page exposed through selector queries only.
type Document interface {
	FindAll(selector string) []Element
	Text() string
	BaseURL() *url.URL
}

// Element is a single node of a Document.
type Element interface {
	Attr(name string) string
	Text() string
	// Closest reports whether the element or one of its ancestors matches selector.
	Closest(selector string) bool
}

// Origin identifies the source a document came from when extracting candidates.
type Origin struct {
	Name string
	Tag  SourceTag
	// SeqBase offsets candidate sequence numbers so ordering is stable across sources.
	SeqBase int
}

// Extractor turns a document into candidates for one content type.
type Extractor interface {
	ContentType() ContentType
	Extract(doc Document, subject Subject, origin Origin) []Candidate
}

// CatalogReader enumerates subjects needing enrichment.
type CatalogReader interface {
	ListSubjects(ctx context.Context, query SubjectQuery) ([]Subject, error)
}

// CatalogWriter persists a final value for one subject field. Writes are
// idempotent; winery photos are merged into the stored set.
type CatalogWriter interface {
	Persist(ctx context.Context, subjectID string, contentType ContentType, value string) error
}

// MediaSink rehosts an image and returns the final URL. It must return the
// original URL when rehosting is not possible.
type MediaSink interface {
	Materialize(ctx context.Context, candidateURL string, subjectID string, contentType ContentType) string
}

// BlobStore writes artifacts and returns a public URL for them.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes change notifications to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deterministic object naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and pauses between attempts (useful for testing).
type Clock interface {
	Now() time.Time
	// Sleep returns after d or when ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

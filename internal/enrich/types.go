package enrich

import (
	"slices"
	"strconv"
	"time"
)

// Kind identifies the catalog entity family a Subject belongs to.
type Kind string

// Supported subject kinds.
const (
	KindWine   Kind = "wine"
	KindWinery Kind = "winery"
)

// ParseKind validates a user-supplied kind string.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(raw) {
	case KindWine, KindWinery:
		return Kind(raw), true
	default:
		return "", false
	}
}

// ContentTypes returns the content types that apply to the kind, in processing order.
func (k Kind) ContentTypes() []ContentType {
	switch k {
	case KindWine:
		return []ContentType{ContentLabel, ContentPrice}
	case KindWinery:
		return []ContentType{ContentLogo, ContentWineryPhoto}
	default:
		return nil
	}
}

// ContentType names the artifact a candidate proposes for a subject.
type ContentType string

// Content types produced by the pipeline.
const (
	ContentLabel       ContentType = "label"
	ContentLogo        ContentType = "logo"
	ContentWineryPhoto ContentType = "winery_photo"
	ContentPrice       ContentType = "price"
)

// ParseContentType validates a user-supplied content type.
func ParseContentType(raw string) (ContentType, bool) {
	switch ContentType(raw) {
	case ContentLabel, ContentLogo, ContentWineryPhoto, ContentPrice:
		return ContentType(raw), true
	default:
		return "", false
	}
}

// IsImage reports whether the content type is materialized as an image URL.
func (c ContentType) IsImage() bool {
	return c != ContentPrice
}

// Kind returns the subject kind the content type belongs to.
func (c ContentType) Kind() Kind {
	switch c {
	case ContentLogo, ContentWineryPhoto:
		return KindWinery
	default:
		return KindWine
	}
}

// SourceTag classifies where a candidate was found.
type SourceTag string

// Source tags ordered from most to least trusted.
const (
	SourceOfficial    SourceTag = "official"
	SourceMarketplace SourceTag = "marketplace"
	SourceSearch      SourceTag = "search"
)

// TrustWeight is the fixed score contribution of the origin.
func (s SourceTag) TrustWeight() int {
	switch s {
	case SourceOfficial:
		return 40
	case SourceMarketplace:
		return 30
	case SourceSearch:
		return 15
	default:
		return 0
	}
}

// LocalizedName carries the catalog's two-language display name.
type LocalizedName struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// Best returns the first non-empty name, preferring Primary.
func (n LocalizedName) Best() string {
	if n.Primary != "" {
		return n.Primary
	}
	return n.Secondary
}

// SourceHints are optional pointers to where a subject's content may live.
type SourceHints struct {
	Homepage string `json:"homepage,omitempty"`
	Slug     string `json:"slug,omitempty"`
}

// ExistingValues is what the catalog currently stores for a subject.
type ExistingValues struct {
	ImageURL string   `json:"image_url,omitempty"`
	LogoURL  string   `json:"logo_url,omitempty"`
	Photos   []string `json:"photos,omitempty"`
	Price    *int64   `json:"price,omitempty"`
}

// Subject is a catalog entity targeted for enrichment. It is read once per run
// and never mutated; results supersede it through the CatalogWriter.
type Subject struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	Name     LocalizedName  `json:"name"`
	Hints    SourceHints    `json:"hints"`
	Existing ExistingValues `json:"existing"`
}

// Missing reports whether the subject has no stored value for the content type.
func (s Subject) Missing(ct ContentType) bool {
	switch ct {
	case ContentLabel:
		return s.Existing.ImageURL == ""
	case ContentLogo:
		return s.Existing.LogoURL == ""
	case ContentWineryPhoto:
		return len(s.Existing.Photos) == 0
	case ContentPrice:
		return s.Existing.Price == nil
	default:
		return false
	}
}

// SubjectQuery selects the batch of subjects for one run.
type SubjectQuery struct {
	Kind Kind
	// OnlyMissing restricts the batch to subjects lacking a value for any of these types.
	OnlyMissing []ContentType
	Limit       int
}

// Outcome is the per-subject result category reported in run statistics.
type Outcome string

// Subject outcomes.
const (
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SubjectResult is what a worker reports back to the orchestrator for one subject.
type SubjectResult struct {
	SubjectID  string            `json:"subject_id"`
	Outcome    Outcome           `json:"outcome"`
	Selections []SelectionResult `json:"selections,omitempty"`
	Err        error             `json:"-"`
}

// RunStats aggregates per-subject outcomes for a batch invocation.
type RunStats struct {
	RunID    string    `json:"run_id"`
	Kind     Kind      `json:"kind"`
	Total    int       `json:"total"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	// FailedSubjects lists the IDs of failed subjects in ascending order.
	FailedSubjects []string  `json:"failed_subjects,omitempty"`
	Started        time.Time `json:"started_at"`
	Finished       time.Time `json:"finished_at"`
}

// Record folds one subject result into the counters.
func (r *RunStats) Record(res SubjectResult) {
	r.Total++
	switch res.Outcome {
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
		i, _ := slices.BinarySearch(r.FailedSubjects, res.SubjectID)
		r.FailedSubjects = slices.Insert(r.FailedSubjects, i, res.SubjectID)
	}
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL    string
	Method string
	// Headers are added on top of the fetcher's default browser-like headers.
	Headers map[string]string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string

	// ContentLength is the declared length, or -1 when unknown.
	ContentLength int64
	Body          []byte
	Attempts      int
	Duration      time.Duration
}

// ProbeResult is the outcome of a lightweight existence check.
type ProbeResult struct {
	URL           string
	StatusCode    int
	ContentType   string
	ContentLength int64
}

func formatAmount(v int64) string {
	return strconv.FormatInt(v, 10)
}

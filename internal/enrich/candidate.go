package enrich

// Payload is the content-type specific part of a Candidate. It is implemented
// only by ImagePayload and PricePayload.
type Payload interface {
	payload()
}

// ImagePayload describes an image discovered in a page together with the raw
// signals observed around it.
type ImagePayload struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Class  string `json:"class,omitempty"`
	ID     string `json:"id,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	// Region is the page region the image was found in (header, nav, footer, logo).
	Region string `json:"region,omitempty"`
	// Keywords lists the inclusion keywords matched in URL, alt, class or id.
	Keywords []string `json:"keywords,omitempty"`
	// Excluded lists keywords from the opposing profile (e.g. "logo" on a label).
	Excluded []string `json:"excluded,omitempty"`
	// NameMatch is set when a token of the subject's name appears in the image metadata.
	NameMatch bool `json:"name_match,omitempty"`
}

func (ImagePayload) payload() {}

// PricePayload is a consensus amount extracted from page text.
type PricePayload struct {
	Amount      int64  `json:"amount"`
	Occurrences int    `json:"occurrences"`
	Pattern     string `json:"pattern"`
	// Specificity ranks the most specific pattern that matched this amount (higher is stronger).
	Specificity int `json:"specificity"`
}

func (PricePayload) payload() {}

// Candidate is one discovered artifact for a subject and content type. It is a
// value type: scoring derives new values from it and never mutates it.
type Candidate struct {
	ContentType ContentType `json:"content_type"`
	Source      SourceTag   `json:"source"`
	SourceName  string      `json:"source_name,omitempty"`
	// Seq is the first-seen order across all sources for a subject and content type.
	Seq     int     `json:"seq"`
	Payload Payload `json:"payload"`
}

// Image returns the image payload when the candidate carries one.
func (c Candidate) Image() (ImagePayload, bool) {
	p, ok := c.Payload.(ImagePayload)
	return p, ok
}

// Price returns the price payload when the candidate carries one.
func (c Candidate) Price() (PricePayload, bool) {
	p, ok := c.Payload.(PricePayload)
	return p, ok
}

// Value renders the candidate's proposed catalog value.
func (c Candidate) Value() string {
	switch p := c.Payload.(type) {
	case ImagePayload:
		return p.URL
	case PricePayload:
		return formatAmount(p.Amount)
	default:
		return ""
	}
}

// ScoredCandidate is a candidate plus the score derived from its signals.
type ScoredCandidate struct {
	Candidate
	Score   int      `json:"score"`
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Rejection records why a candidate was discarded.
type Rejection struct {
	Candidate Candidate `json:"candidate"`
	Score     int       `json:"score,omitempty"`
	Reason    string    `json:"reason"`
}

// SelectionResult is the pipeline's decision for one subject and content type.
type SelectionResult struct {
	SubjectID   string           `json:"subject_id"`
	ContentType ContentType      `json:"content_type"`
	Chosen      *ScoredCandidate `json:"chosen,omitempty"`
	Score       int              `json:"score"`
	Reasons     []string         `json:"reasons,omitempty"`
	Rejected    []Rejection      `json:"rejected,omitempty"`
	// SourcesTried and SourcesFailed describe source availability for this selection.
	SourcesTried  int `json:"sources_tried"`
	SourcesFailed int `json:"sources_failed"`
}

// ChosenValue returns the winning value, or ok=false when nothing cleared the threshold.
func (r SelectionResult) ChosenValue() (string, bool) {
	if r.Chosen == nil {
		return "", false
	}
	return r.Chosen.Value(), true
}

package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Default sane price range in KRW.
const (
	DefaultMinPrice int64 = 1_000
	DefaultMaxPrice int64 = 50_000_000
)

const amountExpr = `([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)`

type pricePattern struct {
	name        string
	specificity int
	re          *regexp.Regexp
}

// Patterns are ordered most specific first. Each has a single amount group.
var pricePatterns = []pricePattern{
	{
		name:        "reference_label",
		specificity: 3,
		re:          regexp.MustCompile(`(?i)(?:참고\s*가격|참고가|reference\s+price)\s*[:：]?\s*(?:₩|krw)?\s*` + amountExpr),
	},
	{
		name:        "sale_label",
		specificity: 2,
		re:          regexp.MustCompile(`(?i)(?:판매\s*가격|판매가|정가|price)\s*[:：]?\s*(?:₩|krw)?\s*` + amountExpr),
	},
	{
		name:        "currency_prefix",
		specificity: 1,
		re:          regexp.MustCompile(`(?i)(?:₩|krw)\s*` + amountExpr),
	},
	{
		name:        "won_suffix",
		specificity: 1,
		re:          regexp.MustCompile(amountExpr + `\s*원`),
	},
}

// PriceExtractor reads the page text and proposes the amount most often
// quoted on it.
type PriceExtractor struct {
	min int64
	max int64
}

var _ enrich.Extractor = (*PriceExtractor)(nil)

// NewPriceExtractor builds a price extractor bounded to [minPrice, maxPrice].
// Non-positive bounds fall back to the defaults.
func NewPriceExtractor(minPrice, maxPrice int64) *PriceExtractor {
	if minPrice <= 0 {
		minPrice = DefaultMinPrice
	}
	if maxPrice <= 0 {
		maxPrice = DefaultMaxPrice
	}
	return &PriceExtractor{min: minPrice, max: maxPrice}
}

// ContentType implements enrich.Extractor.
func (e *PriceExtractor) ContentType() enrich.ContentType { return enrich.ContentPrice }

type priceTally struct {
	amount      int64
	occurrences int
	specificity int
	pattern     string
	firstPos    int
}

// Extract implements enrich.Extractor. At most one candidate is returned.
func (e *PriceExtractor) Extract(doc enrich.Document, _ enrich.Subject, origin enrich.Origin) []enrich.Candidate {
	tallies := e.tally(doc.Text())
	if len(tallies) == 0 {
		return nil
	}
	best := tallies[0]
	return []enrich.Candidate{{
		ContentType: enrich.ContentPrice,
		Source:      origin.Tag,
		SourceName:  origin.Name,
		Seq:         origin.SeqBase,
		Payload: enrich.PricePayload{
			Amount:      best.amount,
			Occurrences: best.occurrences,
			Pattern:     best.pattern,
			Specificity: best.specificity,
		},
	}}
}

// tally counts every in-range amount once per text span and orders the result
// by occurrences, then specificity, then first position.
func (e *PriceExtractor) tally(text string) []priceTally {
	type spanHit struct {
		amount      int64
		specificity int
		pattern     string
	}
	// Keyed by the byte offset of the amount, so overlapping patterns count once.
	spans := map[int]spanHit{}

	for _, p := range pricePatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2], loc[3]
			if start > 0 && isNumberContinuation(text[start-1]) {
				continue
			}
			if end < len(text) && isDigit(text[end]) {
				continue
			}
			amount, ok := parseAmount(text[start:end])
			if !ok || amount < e.min || amount > e.max {
				continue
			}
			if prev, seen := spans[start]; seen && prev.specificity >= p.specificity {
				continue
			}
			spans[start] = spanHit{amount: amount, specificity: p.specificity, pattern: p.name}
		}
	}

	byAmount := map[int64]*priceTally{}
	for pos, hit := range spans {
		t, ok := byAmount[hit.amount]
		if !ok {
			t = &priceTally{amount: hit.amount, firstPos: pos}
			byAmount[hit.amount] = t
		}
		t.occurrences++
		if hit.specificity > t.specificity {
			t.specificity = hit.specificity
			t.pattern = hit.pattern
		}
		if pos < t.firstPos {
			t.firstPos = pos
		}
	}

	out := make([]priceTally, 0, len(byAmount))
	for _, t := range byAmount {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].occurrences != out[j].occurrences {
			return out[i].occurrences > out[j].occurrences
		}
		if out[i].specificity != out[j].specificity {
			return out[i].specificity > out[j].specificity
		}
		return out[i].firstPos < out[j].firstPos
	})
	return out
}

func parseAmount(raw string) (int64, bool) {
	n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isNumberContinuation(b byte) bool { return isDigit(b) || b == ',' || b == '.' }

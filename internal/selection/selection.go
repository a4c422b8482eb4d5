// Package selection picks the winning candidate for a subject and content type.
package selection

import (
	"sort"
	"strconv"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Select deduplicates the scored candidates, moves invalid ones to the
// rejected list and returns the best valid one. The result is deterministic:
// ties on score break on source trust, then on first-seen order.
func Select(subjectID string, ct enrich.ContentType, scored []enrich.ScoredCandidate, rejected []enrich.Rejection) enrich.SelectionResult {
	result := enrich.SelectionResult{
		SubjectID:   subjectID,
		ContentType: ct,
		Rejected:    append([]enrich.Rejection(nil), rejected...),
	}

	var valid []enrich.ScoredCandidate
	for _, sc := range dedupe(scored) {
		if !sc.Valid {
			result.Rejected = append(result.Rejected, enrich.Rejection{
				Candidate: sc.Candidate,
				Score:     sc.Score,
				Reason:    "score " + strconv.Itoa(sc.Score) + " below threshold",
			})
			continue
		}
		valid = append(valid, sc)
	}
	if len(valid) == 0 {
		return result
	}

	sort.SliceStable(valid, func(i, j int) bool { return less(valid[i], valid[j]) })
	winner := valid[0]
	result.Chosen = &winner
	result.Score = winner.Score
	result.Reasons = winner.Reasons
	return result
}

func less(a, b enrich.ScoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ta, tb := a.Source.TrustWeight(), b.Source.TrustWeight(); ta != tb {
		return ta > tb
	}
	return a.Seq < b.Seq
}

// dedupe collapses candidates proposing the same value, keeping the higher
// score and the earlier one on a tie. Input order is preserved.
func dedupe(scored []enrich.ScoredCandidate) []enrich.ScoredCandidate {
	index := map[string]int{}
	out := make([]enrich.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		key := dedupeKey(sc.Candidate)
		if i, ok := index[key]; ok {
			if better(sc, out[i]) {
				out[i] = sc
			}
			continue
		}
		index[key] = len(out)
		out = append(out, sc)
	}
	return out
}

func better(a, b enrich.ScoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}

func dedupeKey(c enrich.Candidate) string {
	if img, ok := c.Image(); ok {
		if key, err := enrich.NormalizeURL(img.URL); err == nil {
			return key
		}
		return img.URL
	}
	return c.Value()
}

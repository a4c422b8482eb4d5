// Package score validates candidates and assigns each an additive score.
package score

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
)

// Score adjustments.
const (
	keywordPoints     = 10
	keywordCap        = 20
	nameMatchPoints   = 15
	largeImagePoints  = 15
	mediumImagePoints = 10
	tinyImagePenalty  = 20
	regionPoints      = 20
	oppositePenalty   = 40
	occurrencePoints  = 10
	occurrenceCap     = 3
	specificityPoints = 5

	largeImageEdge  = 800
	mediumImageEdge = 300
	tinyImageEdge   = 100
)

// Defaults.
const (
	DefaultThreshold     = 50
	DefaultMinImageBytes = 2048
)

// Config tunes validation.
type Config struct {
	Threshold     int
	MinImageBytes int64
	MinPrice      int64
	MaxPrice      int64
}

// Scorer runs the two validation stages. A Scorer caches probe results and is
// meant to live for one run.
type Scorer struct {
	cfg    Config
	prober enrich.Prober
	logger *zap.Logger

	probes sync.Map // normalized URL -> probeOutcome
	group  singleflight.Group
}

type probeOutcome struct {
	result enrich.ProbeResult
	err    error
}

// New builds a Scorer. A nil prober skips the existence check.
func New(cfg Config, prober enrich.Prober, logger *zap.Logger) *Scorer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinImageBytes <= 0 {
		cfg.MinImageBytes = DefaultMinImageBytes
	}
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = 1_000
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = 50_000_000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{cfg: cfg, prober: prober, logger: logger}
}

// Evaluate scores every candidate and validates the ones that could win.
// Candidates below the threshold are rejected with their score and never
// probed; the rest must pass the existence check to be returned as scored.
func (s *Scorer) Evaluate(ctx context.Context, cands []enrich.Candidate) ([]enrich.ScoredCandidate, []enrich.Rejection) {
	scored := make([]enrich.ScoredCandidate, 0, len(cands))
	var rejected []enrich.Rejection
	for _, c := range cands {
		if reason, ok := s.checkPayload(c); !ok {
			metrics.ObserveCandidate(string(c.ContentType), "rejected")
			rejected = append(rejected, enrich.Rejection{Candidate: c, Reason: reason})
			continue
		}
		sc := s.Score(c)
		if !sc.Valid {
			metrics.ObserveCandidate(string(c.ContentType), "below_threshold")
			rejected = append(rejected, enrich.Rejection{
				Candidate: c,
				Score:     sc.Score,
				Reason:    fmt.Sprintf("score %d below threshold", sc.Score),
			})
			continue
		}
		if reason, ok := s.checkExists(ctx, c); !ok {
			metrics.ObserveCandidate(string(c.ContentType), "rejected")
			rejected = append(rejected, enrich.Rejection{Candidate: c, Score: sc.Score, Reason: reason})
			continue
		}
		metrics.ObserveCandidate(string(c.ContentType), "valid")
		scored = append(scored, sc)
	}
	return scored, rejected
}

// checkPayload needs no I/O: prices must fall inside the sane range and the
// payload must be a known kind.
func (s *Scorer) checkPayload(c enrich.Candidate) (string, bool) {
	if p, ok := c.Price(); ok {
		if p.Amount < s.cfg.MinPrice || p.Amount > s.cfg.MaxPrice {
			return fmt.Sprintf("price %d outside [%d, %d]", p.Amount, s.cfg.MinPrice, s.cfg.MaxPrice), false
		}
		return "", true
	}
	if _, ok := c.Image(); !ok {
		return "unknown payload", false
	}
	return "", true
}

// checkExists probes image candidates: they must exist, be images and not be
// implausibly small.
func (s *Scorer) checkExists(ctx context.Context, c enrich.Candidate) (string, bool) {
	img, ok := c.Image()
	if !ok || s.prober == nil {
		return "", true
	}

	out := s.probe(ctx, img.URL)
	switch {
	case out.err != nil:
		return fmt.Sprintf("unreachable: %v", out.err), false
	case out.result.StatusCode < 200 || out.result.StatusCode > 299:
		return fmt.Sprintf("status %d", out.result.StatusCode), false
	case !strings.HasPrefix(strings.ToLower(out.result.ContentType), "image/"):
		return fmt.Sprintf("content type %q is not an image", out.result.ContentType), false
	case out.result.ContentLength >= 0 && out.result.ContentLength < s.cfg.MinImageBytes:
		return fmt.Sprintf("only %d bytes", out.result.ContentLength), false
	}
	return "", true
}

func (s *Scorer) probe(ctx context.Context, rawURL string) probeOutcome {
	key, err := enrich.NormalizeURL(rawURL)
	if err != nil {
		return probeOutcome{err: err}
	}
	if cached, ok := s.probes.Load(key); ok {
		return cached.(probeOutcome)
	}
	v, _, _ := s.group.Do(key, func() (any, error) {
		if cached, ok := s.probes.Load(key); ok {
			return cached, nil
		}
		res, err := s.prober.Probe(ctx, rawURL)
		out := probeOutcome{result: res, err: err}
		s.probes.Store(key, out)
		s.logger.Debug("probed candidate",
			zap.String("url", rawURL),
			zap.Int("status", res.StatusCode),
			zap.String("content_type", res.ContentType),
			zap.Int64("content_length", res.ContentLength),
			zap.Error(err),
		)
		return out, nil
	})
	return v.(probeOutcome)
}

// Score is stage two. It is a pure function of the candidate.
func (s *Scorer) Score(c enrich.Candidate) enrich.ScoredCandidate {
	var (
		total   int
		reasons []string
	)
	add := func(points int, format string, args ...any) {
		total += points
		reasons = append(reasons, fmt.Sprintf("%+d ", points)+fmt.Sprintf(format, args...))
	}

	add(c.Source.TrustWeight(), "trust %s", c.Source)

	switch p := c.Payload.(type) {
	case enrich.ImagePayload:
		scoreImage(c.ContentType, p, add)
	case enrich.PricePayload:
		occ := min(p.Occurrences, occurrenceCap)
		add(occurrencePoints*occ, "seen %d times", p.Occurrences)
		add(specificityPoints*p.Specificity, "pattern %s", p.Pattern)
	}

	return enrich.ScoredCandidate{
		Candidate: c,
		Score:     total,
		Valid:     total >= s.cfg.Threshold,
		Reasons:   reasons,
	}
}

func scoreImage(ct enrich.ContentType, p enrich.ImagePayload, add func(int, string, ...any)) {
	if len(p.Keywords) > 0 {
		add(min(keywordPoints*len(p.Keywords), keywordCap), "keywords %s", strings.Join(p.Keywords, ","))
	}
	if p.NameMatch {
		add(nameMatchPoints, "name match")
	}

	edge := max(p.Width, p.Height)
	switch {
	case edge >= largeImageEdge:
		add(largeImagePoints, "large %dpx", edge)
	case edge >= mediumImageEdge:
		add(mediumImagePoints, "medium %dpx", edge)
	case edge > 0 && edge < tinyImageEdge:
		add(-tinyImagePenalty, "tiny %dpx", edge)
	}

	if ct == enrich.ContentLogo {
		switch p.Region {
		case "header", "nav", "footer", "logo":
			add(regionPoints, "%s region", p.Region)
		}
	}

	if len(p.Excluded) > 0 {
		add(-oppositePenalty, "looks like another type (%s)", strings.Join(p.Excluded, ","))
	}
}

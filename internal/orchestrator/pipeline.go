package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/document"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/selection"
	"github.com/JakeFAU/catalog-enricher/internal/source"
	"github.com/JakeFAU/catalog-enricher/internal/telemetry"
)

// Pipeline is the read-only half of a subject's processing: fetch, extract,
// score and select. It never writes anything.
type Pipeline struct {
	fetcher    enrich.Fetcher
	extractors map[enrich.ContentType]enrich.Extractor
	scorer     Evaluator
	logger     *zap.Logger
}

// NewPipeline builds a Pipeline. The last extractor registered for a content
// type wins.
func NewPipeline(fetcher enrich.Fetcher, extractors []enrich.Extractor, scorer Evaluator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	byType := make(map[enrich.ContentType]enrich.Extractor, len(extractors))
	for _, e := range extractors {
		byType[e.ContentType()] = e
	}
	return &Pipeline{fetcher: fetcher, extractors: byType, scorer: scorer, logger: logger}
}

// Select visits every target, pools the candidates and returns the selection.
// Targets that cannot be fetched or parsed are counted as failed sources.
func (p *Pipeline) Select(ctx context.Context, sub enrich.Subject, ct enrich.ContentType, targets []source.Target, pages *pageCache) enrich.SelectionResult {
	ctx, span := telemetry.Tracer().Start(ctx, "enrich.select",
		trace.WithAttributes(
			attribute.String("subject.id", sub.ID),
			attribute.String("content_type", string(ct)),
			attribute.Int("targets", len(targets)),
		),
	)
	defer span.End()

	if pages == nil {
		pages = newPageCache(p.fetcher)
	}
	extractor, ok := p.extractors[ct]
	if !ok {
		p.logger.Warn("no extractor for content type", zap.String("content_type", string(ct)))
		return enrich.SelectionResult{SubjectID: sub.ID, ContentType: ct}
	}

	var (
		cands  []enrich.Candidate
		failed int
	)
	for _, t := range targets {
		doc, err := pages.get(ctx, t.URL)
		if err != nil {
			failed++
			p.logger.Info("source unavailable",
				zap.String("subject_id", sub.ID),
				zap.String("content_type", string(ct)),
				zap.String("source", t.Origin.Name),
				zap.String("url", t.URL),
				zap.Error(err),
			)
			continue
		}
		cands = append(cands, extractor.Extract(doc, sub, t.Origin)...)
	}

	scored, rejected := p.scorer.Evaluate(ctx, cands)
	result := selection.Select(sub.ID, ct, scored, rejected)
	result.SourcesTried = len(targets)
	result.SourcesFailed = failed
	span.SetAttributes(
		attribute.Int("candidates", len(cands)),
		attribute.Int("score", result.Score),
		attribute.Bool("chosen", result.Chosen != nil),
	)
	return result
}

// Inspect evaluates a single page as if it were the only source for the subject.
func (p *Pipeline) Inspect(ctx context.Context, sub enrich.Subject, ct enrich.ContentType, target source.Target) (enrich.SelectionResult, error) {
	pages := newPageCache(p.fetcher)
	if _, err := pages.get(ctx, target.URL); err != nil {
		return enrich.SelectionResult{}, err
	}
	return p.Select(ctx, sub, ct, []source.Target{target}, pages), nil
}

// pageCache fetches each URL at most once per subject; the official homepage
// is shared by several content types. It is owned by a single worker.
type pageCache struct {
	fetcher enrich.Fetcher
	pages   map[string]pageEntry
}

type pageEntry struct {
	doc enrich.Document
	err error
}

func newPageCache(fetcher enrich.Fetcher) *pageCache {
	return &pageCache{fetcher: fetcher, pages: make(map[string]pageEntry)}
}

func (c *pageCache) get(ctx context.Context, rawURL string) (enrich.Document, error) {
	if e, ok := c.pages[rawURL]; ok {
		return e.doc, e.err
	}
	var e pageEntry
	resp, err := c.fetcher.Fetch(ctx, enrich.FetchRequest{URL: rawURL})
	if err != nil {
		e.err = err
	} else if doc, perr := document.ParseResponse(resp); perr != nil {
		e.err = fmt.Errorf("parse %s: %w", rawURL, perr)
	} else {
		e.doc = doc
	}
	c.pages[rawURL] = e
	return e.doc, e.err
}

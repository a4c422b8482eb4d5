// Package orchestrator drives a batch run: it lists subjects, fans them out
// to a bounded pool of workers and aggregates per-subject outcomes.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-enricher/internal/clock/system"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/source"
)

// Worker pool bounds.
const (
	DefaultConcurrency = 4
	MaxConcurrency     = 8
)

// Evaluator validates and scores candidates for one content type.
type Evaluator interface {
	Evaluate(ctx context.Context, cands []enrich.Candidate) ([]enrich.ScoredCandidate, []enrich.Rejection)
}

// Deps are the collaborators of a run. Sink and Publisher are optional.
type Deps struct {
	Reader     enrich.CatalogReader
	Writer     enrich.CatalogWriter
	Fetcher    enrich.Fetcher
	Sources    *source.Catalogue
	Extractors []enrich.Extractor
	Scorer     Evaluator
	Sink       enrich.MediaSink
	Publisher  enrich.Publisher
	// Topic receives change events; publishing is skipped when empty.
	Topic  string
	Clock  enrich.Clock
	IDs    enrich.IDGenerator
	Logger *zap.Logger
}

// Config controls a run.
type Config struct {
	Concurrency int
	// SubjectDelay is the pause each worker takes between two subjects.
	SubjectDelay time.Duration
	// ContentTypes restricts the run; empty means every type of the kind.
	ContentTypes []enrich.ContentType
	MaxSubjects  int
	// OnlyMissing limits the batch, and the work per subject, to fields that
	// have no stored value yet.
	OnlyMissing bool
}

// Orchestrator runs batches.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	pipeline *Pipeline
	logger   *zap.Logger
}

// New validates the dependencies and applies defaults.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Reader == nil:
		return nil, fmt.Errorf("catalog reader is required")
	case deps.Writer == nil:
		return nil, fmt.Errorf("catalog writer is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Sources == nil:
		return nil, fmt.Errorf("source catalogue is required")
	case deps.Scorer == nil:
		return nil, fmt.Errorf("scorer is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Concurrency > MaxConcurrency {
		cfg.Concurrency = MaxConcurrency
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		pipeline: NewPipeline(deps.Fetcher, deps.Extractors, deps.Scorer, deps.Logger),
		logger:   deps.Logger,
	}, nil
}

// contentTypes returns the configured types that apply to kind, in processing order.
func (o *Orchestrator) contentTypes(kind enrich.Kind) []enrich.ContentType {
	all := kind.ContentTypes()
	if len(o.cfg.ContentTypes) == 0 {
		return all
	}
	want := make(map[enrich.ContentType]struct{}, len(o.cfg.ContentTypes))
	for _, ct := range o.cfg.ContentTypes {
		want[ct] = struct{}{}
	}
	var out []enrich.ContentType
	for _, ct := range all {
		if _, ok := want[ct]; ok {
			out = append(out, ct)
		}
	}
	return out
}

// Run processes one batch of subjects of the given kind. Per-subject failures
// are counted in the returned stats; an error is returned only when the batch
// cannot be set up or the context ends early.
func (o *Orchestrator) Run(ctx context.Context, kind enrich.Kind) (enrich.RunStats, error) {
	cts := o.contentTypes(kind)
	if len(cts) == 0 {
		return enrich.RunStats{}, fmt.Errorf("no content types selected for kind %q", kind)
	}
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return enrich.RunStats{}, fmt.Errorf("generate run id: %w", err)
	}
	stats := enrich.RunStats{RunID: runID, Kind: kind, Started: o.deps.Clock.Now()}

	query := enrich.SubjectQuery{Kind: kind, Limit: o.cfg.MaxSubjects}
	if o.cfg.OnlyMissing {
		query.OnlyMissing = cts
	}
	subjects, err := o.deps.Reader.ListSubjects(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("list subjects: %w", err)
	}

	logger := o.logger.With(zap.String("run_id", runID), zap.String("kind", string(kind)))
	logger.Info("run started",
		zap.Int("subjects", len(subjects)),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Strings("content_types", contentTypeNames(cts)),
	)

	queue := make(chan enrich.Subject, o.cfg.Concurrency)
	results := make(chan enrich.SubjectResult, o.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, sub := range subjects {
			select {
			case queue <- sub:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(gctx)
	for i := 0; i < o.cfg.Concurrency; i++ {
		w := &worker{o: o, runID: runID, kind: kind, contentTypes: cts, logger: logger.With(zap.Int("worker", i))}
		workers.Go(func() error {
			return w.loop(wctx, queue, results)
		})
	}
	g.Go(func() error {
		defer close(results)
		return workers.Wait()
	})

	for res := range results {
		stats.Record(res)
		metrics.ObserveSubject(string(kind), string(res.Outcome))
	}
	waitErr := g.Wait()

	stats.Finished = o.deps.Clock.Now()
	metrics.ObserveRun(stats.Finished.Sub(stats.Started))
	logger.Info("run finished",
		zap.Int("total", stats.Total),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Finished.Sub(stats.Started)),
	)

	if waitErr != nil {
		return stats, fmt.Errorf("run interrupted: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	return stats, nil
}

func contentTypeNames(cts []enrich.ContentType) []string {
	out := make([]string, len(cts))
	for i, ct := range cts {
		out[i] = string(ct)
	}
	return out
}

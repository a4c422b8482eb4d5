package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/telemetry"
)

// ChangeEvent is published after a field has been persisted.
type ChangeEvent struct {
	RunID       string             `json:"run_id"`
	SubjectID   string             `json:"subject_id"`
	Kind        enrich.Kind        `json:"kind"`
	ContentType enrich.ContentType `json:"content_type"`
	Value       string             `json:"value"`
	Score       int                `json:"score"`
	Timestamp   time.Time          `json:"timestamp"`
}

type worker struct {
	o            *Orchestrator
	runID        string
	kind         enrich.Kind
	contentTypes []enrich.ContentType
	logger       *zap.Logger
}

func (w *worker) loop(ctx context.Context, queue <-chan enrich.Subject, results chan<- enrich.SubjectResult) error {
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub, ok := <-queue:
			if !ok {
				return nil
			}
			if !first && w.o.cfg.SubjectDelay > 0 {
				w.o.deps.Clock.Sleep(ctx, w.o.cfg.SubjectDelay)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			first = false

			res := w.process(ctx, sub)
			select {
			case results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// process runs every content type for one subject. It never panics and never
// returns an error; the outcome carries the failure instead.
func (w *worker) process(ctx context.Context, sub enrich.Subject) (res enrich.SubjectResult) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := telemetry.Tracer().Start(ctx, "enrich.subject",
		trace.WithAttributes(
			attribute.String("subject.id", sub.ID),
			attribute.String("subject.kind", string(sub.Kind)),
			attribute.String("run.id", w.runID),
		),
	)
	defer span.End()
	logger := w.logger.With(zap.String("subject_id", sub.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("subject panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			res = enrich.SubjectResult{SubjectID: sub.ID, Outcome: enrich.OutcomeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	res = enrich.SubjectResult{SubjectID: sub.ID}
	pages := newPageCache(w.o.deps.Fetcher)
	var (
		processed   int
		persisted   int
		unavailable = true
		persistErrs []error
	)
	for _, ct := range w.contentTypes {
		if w.o.cfg.OnlyMissing && !sub.Missing(ct) {
			continue
		}
		processed++

		sel := w.o.pipeline.Select(ctx, sub, ct, w.o.deps.Sources.Targets(sub, ct), pages)
		res.Selections = append(res.Selections, sel)
		if sel.SourcesTried == 0 || sel.SourcesFailed < sel.SourcesTried {
			unavailable = false
		}

		value, ok := sel.ChosenValue()
		if !ok {
			logger.Info("no candidate cleared the threshold",
				zap.String("content_type", string(ct)),
				zap.Int("rejected", len(sel.Rejected)),
			)
			continue
		}
		if ct.IsImage() && w.o.deps.Sink != nil {
			value = w.o.deps.Sink.Materialize(ctx, value, sub.ID, ct)
		}
		if err := w.o.deps.Writer.Persist(ctx, sub.ID, ct, value); err != nil {
			logger.Error("persist failed", zap.String("content_type", string(ct)), zap.Error(err))
			persistErrs = append(persistErrs, err)
			continue
		}
		persisted++
		logger.Info("persisted",
			zap.String("content_type", string(ct)),
			zap.String("value", value),
			zap.Int("score", sel.Score),
			zap.Strings("reasons", sel.Reasons),
		)
		w.publish(ctx, sub, ct, value, sel.Score)
	}

	switch {
	case len(persistErrs) > 0:
		res.Outcome = enrich.OutcomeFailed
		res.Err = errors.Join(persistErrs...)
	case persisted > 0:
		res.Outcome = enrich.OutcomeUpdated
	case processed > 0 && unavailable:
		res.Outcome = enrich.OutcomeFailed
		res.Err = fmt.Errorf("subject %s: every source unavailable: %w", sub.ID, enrich.ErrFetchFailed)
	default:
		res.Outcome = enrich.OutcomeSkipped
	}

	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Outcome))
	}
	logger.Debug("subject done", zap.String("outcome", string(res.Outcome)), zap.Error(res.Err))
	return res
}

// publish notifies downstream consumers. Failures are logged and ignored.
func (w *worker) publish(ctx context.Context, sub enrich.Subject, ct enrich.ContentType, value string, score int) {
	if w.o.deps.Publisher == nil || w.o.deps.Topic == "" {
		return
	}
	event := ChangeEvent{
		RunID:       w.runID,
		SubjectID:   sub.ID,
		Kind:        sub.Kind,
		ContentType: ct,
		Value:       value,
		Score:       score,
		Timestamp:   w.o.deps.Clock.Now(),
	}
	if _, err := w.o.deps.Publisher.Publish(ctx, w.o.deps.Topic, event); err != nil {
		w.logger.Warn("publish change event failed",
			zap.String("subject_id", sub.ID),
			zap.String("content_type", string(ct)),
			zap.Error(err),
		)
	}
}

// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	catalogpg "github.com/JakeFAU/catalog-enricher/internal/catalog/postgres"
	"github.com/JakeFAU/catalog-enricher/internal/clock/system"
	"github.com/JakeFAU/catalog-enricher/internal/config"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-enricher/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-enricher/internal/hash/sha256"
	"github.com/JakeFAU/catalog-enricher/internal/id/uuid"
	"github.com/JakeFAU/catalog-enricher/internal/media"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/orchestrator"
	"github.com/JakeFAU/catalog-enricher/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-enricher/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-enricher/internal/score"
	"github.com/JakeFAU/catalog-enricher/internal/storage/gcs"
	"github.com/JakeFAU/catalog-enricher/internal/storage/local"
	"github.com/JakeFAU/catalog-enricher/internal/telemetry"
)

// ServiceName identifies the process in traces.
const ServiceName = "catalog-enricher"

// App holds the shared, long-lived services for one process. Network-backed
// services are opened lazily so read-only commands never need credentials.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	tracer  *sdktrace.TracerProvider
	clock   enrich.Clock
	fetcher *collyfetcher.Fetcher

	catalog   *catalogpg.Store
	blobs     enrich.BlobStore
	gcsStore  *gcs.BlobStore
	publisher *pubsub.Publisher
}

// New builds the services every command needs: tracing, metrics and the
// shared fetcher with its politeness limiter.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, ServiceName, version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{MinDelay: cfg.Fetch.MinDelay})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
		RespectRobots:  cfg.Fetch.RespectRobots,
		Timeout:        cfg.Fetch.Timeout,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		BackoffInitial: cfg.Fetch.BackoffInitial,
		BackoffMax:     cfg.Fetch.BackoffMax,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
	}, limiter, clock, logger.Named("fetch"))

	return &App{cfg: cfg, logger: logger, tracer: tp, clock: clock, fetcher: fetcher}, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Extractors returns one extractor per content type.
func (a *App) Extractors() []enrich.Extractor {
	return []enrich.Extractor{
		extract.NewImageExtractor(enrich.ContentLabel),
		extract.NewImageExtractor(enrich.ContentWineryPhoto),
		extract.NewLogoExtractor(),
		extract.NewPriceExtractor(a.cfg.Score.MinPrice, a.cfg.Score.MaxPrice),
	}
}

func (a *App) newScorer() *score.Scorer {
	return score.New(score.Config{
		Threshold:     a.cfg.Score.Threshold,
		MinImageBytes: a.cfg.Score.MinImageBytes,
		MinPrice:      a.cfg.Score.MinPrice,
		MaxPrice:      a.cfg.Score.MaxPrice,
	}, a.fetcher, a.logger.Named("score"))
}

// Pipeline builds the read-only fetch, extract, score and select stages.
func (a *App) Pipeline() *orchestrator.Pipeline {
	return orchestrator.NewPipeline(a.fetcher, a.Extractors(), a.newScorer(), a.logger.Named("pipeline"))
}

// Orchestrator opens the catalog, media host and publisher, and wires them
// into an orchestrator. A catalog failure is fatal; a media or publisher
// failure degrades the run instead.
func (a *App) Orchestrator(ctx context.Context, runCfg orchestrator.Config) (*orchestrator.Orchestrator, error) {
	if err := a.cfg.Catalog.Validate(); err != nil {
		return nil, err
	}
	sources, err := a.cfg.SourceCatalogue()
	if err != nil {
		return nil, err
	}

	if a.catalog == nil {
		a.logger.Info("connecting to catalog")
		store, err := catalogpg.New(ctx, catalogpg.Config{
			DSN:             a.cfg.Catalog.DSN,
			WinesTable:      a.cfg.Catalog.WinesTable,
			WineriesTable:   a.cfg.Catalog.WineriesTable,
			MaxConns:        a.cfg.Catalog.MaxConns,
			MinConns:        a.cfg.Catalog.MinConns,
			MaxConnLifetime: a.cfg.Catalog.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		a.catalog = store
	}

	if a.blobs == nil {
		a.blobs = a.openBlobStore(ctx)
	}
	sink := media.New(media.Config{
		Folder:       a.cfg.Media.Folder,
		MaxDimension: a.cfg.Media.MaxDimension,
		Quality:      a.cfg.Media.Quality,
		ExtraSizes:   a.cfg.Media.ExtraSizes,
	}, a.fetcher, a.blobs, sha256.New(), a.logger.Named("media"))

	var publisher enrich.Publisher
	if a.publisher == nil && a.cfg.PubSub.Topic != "" {
		p, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			a.logger.Warn("pubsub unavailable; change events disabled", zap.Error(err))
		} else {
			a.publisher = p
		}
	}
	if a.publisher != nil {
		publisher = a.publisher
	}

	return orchestrator.New(orchestrator.Deps{
		Reader:     a.catalog,
		Writer:     a.catalog,
		Fetcher:    a.fetcher,
		Sources:    sources,
		Extractors: a.Extractors(),
		Scorer:     a.newScorer(),
		Sink:       sink,
		Publisher:  publisher,
		Topic:      a.cfg.PubSub.Topic,
		Clock:      a.clock,
		IDs:        uuid.New(),
		Logger:     a.logger.Named("run"),
	}, runCfg)
}

// openBlobStore picks the media host. It returns nil, which disables
// rehosting, when none is configured or the configured one is unreachable.
func (a *App) openBlobStore(ctx context.Context) enrich.BlobStore {
	switch {
	case a.cfg.Media.Bucket != "":
		store, err := gcs.Open(ctx, gcs.Config{
			Bucket:        a.cfg.Media.Bucket,
			PublicBaseURL: a.cfg.Media.PublicBaseURL,
			CacheControl:  a.cfg.Media.CacheControl,
		}, a.logger)
		if err != nil {
			a.logger.Warn("media host unavailable; images keep their original urls", zap.Error(err))
			return nil
		}
		a.gcsStore = store
		return store
	case a.cfg.Media.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: a.cfg.Media.LocalDir, PublicBaseURL: a.cfg.Media.PublicBaseURL})
		if err != nil {
			a.logger.Warn("media directory unusable; images keep their original urls", zap.Error(err))
			return nil
		}
		a.logger.Info("rehosting images on the local filesystem", zap.String("dir", a.cfg.Media.LocalDir))
		return store
	default:
		return nil
	}
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

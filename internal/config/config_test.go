package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
logging:
  development: true
  level: debug
catalog:
  dsn: postgres://enricher@localhost/catalog
  wines_table: wine_items
fetch:
  timeout: 20s
  max_attempts: 5
  backoff_initial: 250ms
  backoff_max: 4s
  min_delay: 3s
score:
  threshold: 60
media:
  bucket: catalog-media
  folder: enriched
  extra_sizes: [320, 640]
pubsub:
  project_id: wine-prod
  topic: catalog-changes
run:
  concurrency: 6
  subject_delay: 500ms
  max_subjects: 100
  only_missing: false
  content_types: [label]
sources:
  - name: vivino
    tag: marketplace
    content_types: [label, price]
    url_template: "https://www.vivino.com/search/wines?q={name_en}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Catalog.WinesTable != "wine_items" || cfg.Catalog.WineriesTable != "wineries" {
		t.Fatalf("expected table override with default fallback, got %+v", cfg.Catalog)
	}
	if cfg.Fetch.Timeout != 20*time.Second || cfg.Fetch.MinDelay != 3*time.Second {
		t.Fatalf("expected duration overrides, got %+v", cfg.Fetch)
	}
	if cfg.Run.Concurrency != 6 || cfg.Run.OnlyMissing {
		t.Fatalf("expected run overrides, got %+v", cfg.Run)
	}
	if len(cfg.Media.ExtraSizes) != 2 || cfg.Media.ExtraSizes[1] != 640 {
		t.Fatalf("expected extra sizes, got %v", cfg.Media.ExtraSizes)
	}
	cts, err := cfg.ContentTypes()
	if err != nil || len(cts) != 1 || cts[0] != enrich.ContentLabel {
		t.Fatalf("expected [label], got %v (%v)", cts, err)
	}
	cat, err := cfg.SourceCatalogue()
	if err != nil {
		t.Fatalf("SourceCatalogue() error = %v", err)
	}
	if got := cat.Sources(); len(got) != 1 || got[0].Name != "vivino" {
		t.Fatalf("expected configured source, got %+v", got)
	}
	if err := cfg.Catalog.Validate(); err != nil {
		t.Fatalf("expected dsn to validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Score.Threshold != 50 || cfg.Run.Concurrency != 4 || !cfg.Run.OnlyMissing {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Fetch.MaxAttempts != 3 || cfg.Fetch.Timeout != 15*time.Second {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	cat, err := cfg.SourceCatalogue()
	if err != nil {
		t.Fatalf("SourceCatalogue() error = %v", err)
	}
	if len(cat.Sources()) != len(source.Defaults()) {
		t.Fatalf("expected built-in sources")
	}
	if err := cfg.Catalog.Validate(); err == nil {
		t.Fatal("expected missing dsn to fail")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENRICHER_CATALOG_DSN", "postgres://env@localhost/catalog")
	t.Setenv("ENRICHER_RUN_CONCURRENCY", "2")
	t.Setenv("ENRICHER_FETCH_MIN_DELAY", "750ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Catalog.DSN != "postgres://env@localhost/catalog" {
		t.Fatalf("expected dsn from env, got %q", cfg.Catalog.DSN)
	}
	if cfg.Run.Concurrency != 2 || cfg.Fetch.MinDelay != 750*time.Millisecond {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.Run, cfg.Fetch)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := map[string]func(*Config){
		"concurrency too high": func(c *Config) { c.Run.Concurrency = 9 },
		"no attempts":          func(c *Config) { c.Fetch.MaxAttempts = 0 },
		"inverted backoff":     func(c *Config) { c.Fetch.BackoffInitial = time.Minute },
		"price range":          func(c *Config) { c.Score.MinPrice = c.Score.MaxPrice },
		"quality":              func(c *Config) { c.Media.Quality = 0 },
		"topic without project": func(c *Config) {
			c.PubSub.Topic = "catalog-changes"
		},
		"unknown content type": func(c *Config) { c.Run.ContentTypes = []string{"vintage"} },
		"bad source": func(c *Config) {
			c.Sources = []SourceConfig{{Name: "x", Tag: "blog", ContentTypes: []string{"label"}, URLTemplate: "{homepage}"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.Sources = nil
			cfg.Run.ContentTypes = nil
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSourceCatalogueWrapsInvalidSource(t *testing.T) {
	t.Parallel()

	cfg := Config{Sources: []SourceConfig{{Name: "x", Tag: "official", URLTemplate: "{homepage}"}}}
	_, err := cfg.SourceCatalogue()
	if !errors.Is(err, source.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
	if !strings.Contains(err.Error(), "sources") {
		t.Fatalf("expected error to name the section: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

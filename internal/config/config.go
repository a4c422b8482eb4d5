// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/source"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig  `mapstructure:"logging"`
	Catalog CatalogConfig  `mapstructure:"catalog"`
	Fetch   FetchConfig    `mapstructure:"fetch"`
	Score   ScoreConfig    `mapstructure:"score"`
	Media   MediaConfig    `mapstructure:"media"`
	PubSub  PubSubConfig   `mapstructure:"pubsub"`
	Run     RunConfig      `mapstructure:"run"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Sources []SourceConfig `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CatalogConfig controls access to the Postgres catalog.
type CatalogConfig struct {
	DSN             string        `mapstructure:"dsn"`
	WinesTable      string        `mapstructure:"wines_table"`
	WineriesTable   string        `mapstructure:"wineries_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// FetchConfig configures outbound requests, retries and politeness.
type FetchConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
}

// ScoreConfig tunes candidate validation.
type ScoreConfig struct {
	Threshold     int   `mapstructure:"threshold"`
	MinImageBytes int64 `mapstructure:"min_image_bytes"`
	MinPrice      int64 `mapstructure:"min_price"`
	MaxPrice      int64 `mapstructure:"max_price"`
}

// MediaConfig sets where rehosted images land. The bucket wins over LocalDir;
// with neither set, images keep their original URLs.
type MediaConfig struct {
	Bucket        string `mapstructure:"bucket"`
	LocalDir      string `mapstructure:"local_dir"`
	Folder        string `mapstructure:"folder"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	CacheControl  string `mapstructure:"cache_control"`
	MaxDimension  int    `mapstructure:"max_dimension"`
	Quality       int    `mapstructure:"quality"`
	ExtraSizes    []int  `mapstructure:"extra_sizes"`
}

// PubSubConfig holds metadata for change notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RunConfig governs the batch itself.
type RunConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	SubjectDelay time.Duration `mapstructure:"subject_delay"`
	MaxSubjects  int           `mapstructure:"max_subjects"`
	OnlyMissing  bool          `mapstructure:"only_missing"`
	ContentTypes []string      `mapstructure:"content_types"`
}

// MetricsConfig points at an optional Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// SourceConfig is one entry of the source catalogue.
type SourceConfig struct {
	Name         string   `mapstructure:"name"`
	Tag          string   `mapstructure:"tag"`
	ContentTypes []string `mapstructure:"content_types"`
	URLTemplate  string   `mapstructure:"url_template"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key gets a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("catalog.dsn", "")
	v.SetDefault("catalog.wines_table", "wines")
	v.SetDefault("catalog.wineries_table", "wineries")
	v.SetDefault("catalog.max_conns", 8)
	v.SetDefault("catalog.min_conns", 0)
	v.SetDefault("catalog.max_conn_lifetime", time.Hour)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.accept_language", "")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial", 500*time.Millisecond)
	v.SetDefault("fetch.backoff_max", 8*time.Second)
	v.SetDefault("fetch.min_delay", time.Second)
	v.SetDefault("fetch.max_body_bytes", 8<<20)
	v.SetDefault("score.threshold", 50)
	v.SetDefault("score.min_image_bytes", 2048)
	v.SetDefault("score.min_price", 1_000)
	v.SetDefault("score.max_price", 50_000_000)
	v.SetDefault("media.bucket", "")
	v.SetDefault("media.local_dir", "")
	v.SetDefault("media.folder", "")
	v.SetDefault("media.public_base_url", "")
	v.SetDefault("media.cache_control", "public, max-age=31536000")
	v.SetDefault("media.max_dimension", 1200)
	v.SetDefault("media.quality", 85)
	v.SetDefault("media.extra_sizes", []int{})
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("run.concurrency", 4)
	v.SetDefault("run.subject_delay", 2*time.Second)
	v.SetDefault("run.max_subjects", 0)
	v.SetDefault("run.only_missing", true)
	v.SetDefault("run.content_types", []string{})
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "catalog_enricher")
}

// Validate enforces reasonable limits. The catalog DSN is checked separately
// because read-only commands do not need one.
func (c Config) Validate() error {
	if c.Run.Concurrency <= 0 || c.Run.Concurrency > 8 {
		return fmt.Errorf("run.concurrency must be between 1 and 8")
	}
	if c.Run.SubjectDelay < 0 {
		return fmt.Errorf("run.subject_delay must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Fetch.BackoffInitial > c.Fetch.BackoffMax {
		return fmt.Errorf("fetch.backoff_initial must not exceed fetch.backoff_max")
	}
	if c.Score.Threshold <= 0 {
		return fmt.Errorf("score.threshold must be > 0")
	}
	if c.Score.MinPrice <= 0 || c.Score.MinPrice >= c.Score.MaxPrice {
		return fmt.Errorf("score.min_price must be > 0 and below score.max_price")
	}
	if c.Media.Quality < 1 || c.Media.Quality > 100 {
		return fmt.Errorf("media.quality must be between 1 and 100")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if _, err := c.ContentTypes(); err != nil {
		return err
	}
	if _, err := c.SourceCatalogue(); err != nil {
		return err
	}
	return nil
}

// Validate requires the connection string.
func (c CatalogConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}
	return nil
}

// ContentTypes parses run.content_types.
func (c Config) ContentTypes() ([]enrich.ContentType, error) {
	return ParseContentTypes(c.Run.ContentTypes)
}

// ParseContentTypes validates a list of content type names.
func ParseContentTypes(raw []string) ([]enrich.ContentType, error) {
	out := make([]enrich.ContentType, 0, len(raw))
	for _, r := range raw {
		ct, ok := enrich.ParseContentType(strings.TrimSpace(r))
		if !ok {
			return nil, fmt.Errorf("unknown content type %q", r)
		}
		out = append(out, ct)
	}
	return out, nil
}

// SourceCatalogue builds the configured catalogue, or the built-in one when
// no sources are configured.
func (c Config) SourceCatalogue() (*source.Catalogue, error) {
	if len(c.Sources) == 0 {
		return source.NewCatalogue(source.Defaults())
	}
	sources := make([]source.Source, 0, len(c.Sources))
	for _, sc := range c.Sources {
		cts := make([]enrich.ContentType, 0, len(sc.ContentTypes))
		for _, raw := range sc.ContentTypes {
			cts = append(cts, enrich.ContentType(strings.TrimSpace(raw)))
		}
		sources = append(sources, source.Source{
			Name:         sc.Name,
			Tag:          enrich.SourceTag(sc.Tag),
			ContentTypes: cts,
			URLTemplate:  sc.URLTemplate,
		})
	}
	cat, err := source.NewCatalogue(sources)
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	return cat, nil
}

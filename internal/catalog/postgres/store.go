// Package postgres reads enrichment subjects from and writes results to the
// Postgres catalog.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	WinesTable      string
	WineriesTable   string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store implements enrich.CatalogReader and enrich.CatalogWriter.
type Store struct {
	pool     queryExecCloser
	wines    string
	wineries string
}

var (
	_ enrich.CatalogReader = (*Store)(nil)
	_ enrich.CatalogWriter = (*Store)(nil)
)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.WinesTable, cfg.WineriesTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser, winesTable, wineriesTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if winesTable == "" {
		winesTable = "wines"
	}
	if wineriesTable == "" {
		wineriesTable = "wineries"
	}
	for _, table := range []string{winesTable, wineriesTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: pool, wines: winesTable, wineries: wineriesTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ListSubjects returns the batch for a run ordered by id.
func (s *Store) ListSubjects(ctx context.Context, q enrich.SubjectQuery) ([]enrich.Subject, error) {
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	switch q.Kind {
	case enrich.KindWine:
		return s.listWines(ctx, q.OnlyMissing, limit)
	case enrich.KindWinery:
		return s.listWineries(ctx, q.OnlyMissing, limit)
	default:
		return nil, fmt.Errorf("unknown subject kind %q", q.Kind)
	}
}

func (s *Store) listWines(ctx context.Context, onlyMissing []enrich.ContentType, limit any) ([]enrich.Subject, error) {
	query := fmt.Sprintf(`
SELECT id::text, coalesce(name_ko, ''), coalesce(name_en, ''), coalesce(homepage, ''), coalesce(image_url, ''), price
FROM %s%s
ORDER BY id
LIMIT $1`, s.wines, missingClause(onlyMissing))

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query wines: %w", err)
	}
	defer rows.Close()

	var out []enrich.Subject
	for rows.Next() {
		sub := enrich.Subject{Kind: enrich.KindWine}
		var price *int64
		if err := rows.Scan(&sub.ID, &sub.Name.Primary, &sub.Name.Secondary, &sub.Hints.Homepage, &sub.Existing.ImageURL, &price); err != nil {
			return nil, fmt.Errorf("scan wine: %w", err)
		}
		sub.Existing.Price = price
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wines: %w", err)
	}
	return out, nil
}

func (s *Store) listWineries(ctx context.Context, onlyMissing []enrich.ContentType, limit any) ([]enrich.Subject, error) {
	query := fmt.Sprintf(`
SELECT id::text, coalesce(name_ko, ''), coalesce(name_en, ''), coalesce(homepage, ''), coalesce(slug, ''), coalesce(logo_url, ''), coalesce(photos, '{}')
FROM %s%s
ORDER BY id
LIMIT $1`, s.wineries, missingClause(onlyMissing))

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query wineries: %w", err)
	}
	defer rows.Close()

	var out []enrich.Subject
	for rows.Next() {
		sub := enrich.Subject{Kind: enrich.KindWinery}
		if err := rows.Scan(&sub.ID, &sub.Name.Primary, &sub.Name.Secondary, &sub.Hints.Homepage, &sub.Hints.Slug, &sub.Existing.LogoURL, &sub.Existing.Photos); err != nil {
			return nil, fmt.Errorf("scan winery: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wineries: %w", err)
	}
	return out, nil
}

// missingClause builds a WHERE clause matching rows that lack any of the
// given content types. Only fixed column names are interpolated.
func missingClause(cts []enrich.ContentType) string {
	var conds []string
	for _, ct := range cts {
		switch ct {
		case enrich.ContentLabel:
			conds = append(conds, "coalesce(image_url, '') = ''")
		case enrich.ContentPrice:
			conds = append(conds, "price IS NULL")
		case enrich.ContentLogo:
			conds = append(conds, "coalesce(logo_url, '') = ''")
		case enrich.ContentWineryPhoto:
			conds = append(conds, "coalesce(cardinality(photos), 0) = 0")
		}
	}
	if len(conds) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(conds, " OR ")
}

// Persist writes one field. Images and prices overwrite; winery photos are
// merged into the stored array, keeping first-seen order and dropping
// duplicates, in a single statement.
func (s *Store) Persist(ctx context.Context, subjectID string, ct enrich.ContentType, value string) error {
	query, arg, err := s.persistStatement(ct, value)
	if err != nil {
		return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: err}
	}
	tag, err := s.pool.Exec(ctx, query, subjectID, arg)
	if err != nil {
		return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: fmt.Errorf("update %s: %w", ct, err)}
	}
	if tag.RowsAffected() == 0 {
		return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: enrich.ErrSubjectNotFound}
	}
	return nil
}

func (s *Store) persistStatement(ct enrich.ContentType, value string) (string, any, error) {
	switch ct {
	case enrich.ContentLabel:
		return fmt.Sprintf(`UPDATE %s SET image_url = $2, updated_at = now() WHERE id = $1`, s.wines), value, nil
	case enrich.ContentPrice:
		amount, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("parse price %q: %w", value, err)
		}
		return fmt.Sprintf(`UPDATE %s SET price = $2, updated_at = now() WHERE id = $1`, s.wines), amount, nil
	case enrich.ContentLogo:
		return fmt.Sprintf(`UPDATE %s SET logo_url = $2, updated_at = now() WHERE id = $1`, s.wineries), value, nil
	case enrich.ContentWineryPhoto:
		return fmt.Sprintf(`
UPDATE %s SET photos = ARRAY(
	SELECT u FROM unnest(coalesce(photos, '{}'::text[]) || $2::text[]) WITH ORDINALITY AS t(u, ord)
	GROUP BY u
	ORDER BY min(ord)
), updated_at = now()
WHERE id = $1`, s.wineries), []string{value}, nil
	default:
		return "", nil, fmt.Errorf("unknown content type %q", ct)
	}
}

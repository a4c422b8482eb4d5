// Package memory is an in-memory catalog for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Store implements enrich.CatalogReader and enrich.CatalogWriter over a map.
type Store struct {
	mu       sync.RWMutex
	subjects map[string]enrich.Subject
	writes   map[string]int

	// FailPersist, when set, is consulted before every write; a non-nil
	// result is returned wrapped in an *enrich.CatalogError.
	FailPersist func(subjectID string, ct enrich.ContentType) error
}

var (
	_ enrich.CatalogReader = (*Store)(nil)
	_ enrich.CatalogWriter = (*Store)(nil)
)

// New seeds a store with the given subjects.
func New(subjects ...enrich.Subject) *Store {
	s := &Store{
		subjects: make(map[string]enrich.Subject, len(subjects)),
		writes:   make(map[string]int),
	}
	for _, sub := range subjects {
		s.subjects[sub.ID] = clone(sub)
	}
	return s
}

// ListSubjects returns matching subjects ordered by id.
func (s *Store) ListSubjects(_ context.Context, q enrich.SubjectQuery) ([]enrich.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []enrich.Subject
	for _, sub := range s.subjects {
		if sub.Kind != q.Kind {
			continue
		}
		if len(q.OnlyMissing) > 0 && !missingAny(sub, q.OnlyMissing) {
			continue
		}
		out = append(out, clone(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func missingAny(sub enrich.Subject, cts []enrich.ContentType) bool {
	for _, ct := range cts {
		if ct.Kind() == sub.Kind && sub.Missing(ct) {
			return true
		}
	}
	return false
}

// Persist applies the same field semantics as the Postgres catalog.
func (s *Store) Persist(_ context.Context, subjectID string, ct enrich.ContentType, value string) error {
	if s.FailPersist != nil {
		if err := s.FailPersist(subjectID, ct); err != nil {
			return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subjects[subjectID]
	if !ok || sub.Kind != ct.Kind() {
		return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: enrich.ErrSubjectNotFound}
	}
	switch ct {
	case enrich.ContentLabel:
		sub.Existing.ImageURL = value
	case enrich.ContentLogo:
		sub.Existing.LogoURL = value
	case enrich.ContentPrice:
		amount, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: fmt.Errorf("parse price %q: %w", value, err)}
		}
		sub.Existing.Price = &amount
	case enrich.ContentWineryPhoto:
		sub.Existing.Photos = union(sub.Existing.Photos, value)
	default:
		return &enrich.CatalogError{SubjectID: subjectID, ContentType: ct, Err: fmt.Errorf("unknown content type %q", ct)}
	}
	s.subjects[subjectID] = sub
	s.writes[subjectID]++
	return nil
}

// union appends value unless already present, keeping first-seen order.
func union(photos []string, value string) []string {
	out := make([]string, 0, len(photos)+1)
	seen := make(map[string]struct{}, len(photos)+1)
	for _, p := range append(append([]string(nil), photos...), value) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Get returns a copy of the stored subject.
func (s *Store) Get(id string) (enrich.Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	return clone(sub), ok
}

// Writes returns the number of successful writes for a subject.
func (s *Store) Writes(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[id]
}

func clone(sub enrich.Subject) enrich.Subject {
	sub.Existing.Photos = append([]string(nil), sub.Existing.Photos...)
	if sub.Existing.Price != nil {
		p := *sub.Existing.Price
		sub.Existing.Price = &p
	}
	return sub
}

package enrich

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the pipeline.
var (
	// ErrFetchFailed marks a source that stayed unavailable after all retries.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrCatalogWrite marks a catalog update that did not apply.
	ErrCatalogWrite = errors.New("catalog write failed")
	// ErrSubjectNotFound is returned when the catalog has no row for the subject.
	ErrSubjectNotFound = errors.New("subject not found")
)

// FetchError is returned by fetchers once retries are exhausted or the
// response is permanently unusable.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes every FetchError match ErrFetchFailed.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// CatalogError wraps a failed catalog write for one subject field.
type CatalogError struct {
	SubjectID   string
	ContentType ContentType
	Err         error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("persist %s for %s: %v", e.ContentType, e.SubjectID, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Is makes every CatalogError match ErrCatalogWrite.
func (e *CatalogError) Is(target error) bool { return target == ErrCatalogWrite }

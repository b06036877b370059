package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptPool marks a persisted pool document that cannot be trusted.
	// It is always fatal for the run; nothing repairs it automatically.
	ErrCorruptPool = errors.New("corrupt pool document")
	// ErrUnsupportedVersion is returned for documents written by a newer format.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrCorruptPool)
	// ErrExtraction means no tags or queries could be produced for an article.
	ErrExtraction = errors.New("keyword extraction failed")
	// ErrNotFound is a normal outcome: no entry matched.
	ErrNotFound = errors.New("not found")
)

// FetchError wraps a failed candidate source call for one query.
type FetchError struct {
	Provider string
	Query    string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s query %q: %v", e.Provider, e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

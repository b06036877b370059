// Package source implements candidate image sources backed by public,
// freely-licensed image APIs.
package source

import (
	"context"
	"net/http"
	"time"

	"imagepool/internal/domain"
)

// Source searches an external image catalogue.
type Source interface {
	// Search returns at most limit candidates for query.
	Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error)
	// Provider is the provider name recorded on pool entries.
	Provider() string
}

// DefaultTimeout bounds a single search call.
const DefaultTimeout = 25 * time.Second

// DefaultUserAgent identifies the pool maintainer to public APIs.
const DefaultUserAgent = "imagepool/1.0 (+https://commons.wikimedia.org/wiki/Commons:API)"

// MaxPageSize is the largest page any provider is asked for.
const MaxPageSize = 50

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func defaultClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: DefaultTimeout}
	}
	return client
}

package domain

import "strings"

// Provider names as they appear in pool documents.
const (
	ProviderWikimedia = "wikimedia_commons"
	ProviderOpenverse = "openverse"
)

// PoolEntry is the persisted unit of the image pool.
type PoolEntry struct {
	// Key is the provenance identity, e.g. "wikimedia:12345". It is the merge key
	// and is never regenerated once assigned.
	Key string `json:"key" yaml:"key,omitempty"`

	Provider   string `json:"provider" yaml:"provider"`
	Industry   string `json:"industry" yaml:"industry"`
	Title      string `json:"title" yaml:"title"`
	URL        string `json:"url" yaml:"url"`
	ImageURL   string `json:"image_url" yaml:"image_url"`
	License    string `json:"license" yaml:"license"`
	LicenseURL string `json:"license_url" yaml:"license_url"`

	// Tags is the bounded union of every tag set seen for this entry.
	Tags []string `json:"tags" yaml:"tags"`

	// Score is the maximum relevance score ever computed for this entry.
	Score float64 `json:"score" yaml:"score,omitempty"`

	// FirstSeen and LastSeen are unix seconds.
	FirstSeen int64 `json:"first_seen" yaml:"first_seen,omitempty"`
	LastSeen  int64 `json:"last_seen" yaml:"last_seen,omitempty"`

	// UsedCount is bumped by the cover picking path, never by merges.
	UsedCount int `json:"used_count" yaml:"used_count,omitempty"`

	// Weight is a manual curation priority, set by the seed builder.
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Pool is the persisted aggregate document.
type Pool struct {
	Version   int         `json:"version"`
	UpdatedAt string      `json:"updated_at"`
	Items     []PoolEntry `json:"items"`
}

// Candidate is an image record returned by a candidate source. It is not
// guaranteed unique across calls and never persisted directly.
type Candidate struct {
	ID           string
	Title        string
	URL          string // landing page
	ImageURL     string
	ThumbnailURL string
	License      string
	LicenseURL   string
	Creator      string
	Provider     string
}

// ScoredCandidate is one incoming item for a pool merge.
type ScoredCandidate struct {
	Key        string
	Provider   string
	Industry   string
	Title      string
	URL        string
	ImageURL   string
	License    string
	LicenseURL string
	Tags       []string
	Score      float64
}

// KeyFor derives the stable pool key for a provider-native id.
func KeyFor(provider, id string) string {
	id = strings.TrimSpace(id)
	switch provider {
	case ProviderWikimedia:
		return "wikimedia:" + id
	case ProviderOpenverse:
		return "openverse:" + id
	default:
		return provider + ":" + id
	}
}

// ValidKey reports whether key has the "<provider>:<id>" shape with both
// parts non-empty.
func ValidKey(key string) bool {
	prefix, id, ok := strings.Cut(key, ":")
	return ok && strings.TrimSpace(prefix) != "" && strings.TrimSpace(id) != ""
}

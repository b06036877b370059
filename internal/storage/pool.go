package storage

import (
	"fmt"
	"sort"

	"imagepool/internal/domain"
)

const (
	// MaxTags bounds the tag union kept per entry.
	MaxTags = 40
	// DefaultCap is the default entry budget of the pool.
	DefaultCap = 2000
	// MinCap is the floor applied to any requested cap.
	MinCap = 100
	// RecencyDivisor scales last_seen into a tie-break that stays well below
	// one score point between any two realistic timestamps.
	RecencyDivisor = 1e9
	// MaxUsedBonus caps how many uses contribute to the rank.
	MaxUsedBonus = 10
	// UsedWeight is the rank bonus per counted use.
	UsedWeight = 0.5
)

// Merge folds incoming candidates into existing entries keyed by Key.
//
// Known keys get their scalar metadata overwritten, tags unioned (bounded by
// MaxTags), score maxed and LastSeen set to now. Unknown keys are inserted
// with FirstSeen = LastSeen = now. Candidates without a usable key are
// skipped. Neither input is modified; the result lists existing entries in
// their original order followed by new ones in arrival order.
func Merge(existing []domain.PoolEntry, incoming []domain.ScoredCandidate, now int64) []domain.PoolEntry {
	out := make([]domain.PoolEntry, 0, len(existing)+len(incoming))
	idx := make(map[string]int, len(existing)+len(incoming))

	for _, e := range existing {
		e.Tags = append([]string(nil), e.Tags...)
		if i, ok := idx[e.Key]; ok {
			out[i] = e
			continue
		}
		idx[e.Key] = len(out)
		out = append(out, e)
	}

	for _, c := range incoming {
		if !domain.ValidKey(c.Key) {
			continue
		}

		if i, ok := idx[c.Key]; ok {
			cur := &out[i]
			if c.Provider != "" {
				cur.Provider = c.Provider
			}
			cur.Industry = c.Industry
			cur.Title = c.Title
			cur.URL = c.URL
			cur.ImageURL = c.ImageURL
			cur.License = c.License
			cur.LicenseURL = c.LicenseURL
			cur.Tags = unionTags(cur.Tags, c.Tags)
			if c.Score > cur.Score {
				cur.Score = c.Score
			}
			cur.LastSeen = now
			if cur.FirstSeen > cur.LastSeen {
				cur.FirstSeen = cur.LastSeen
			}
			continue
		}

		idx[c.Key] = len(out)
		out = append(out, domain.PoolEntry{
			Key:        c.Key,
			Provider:   c.Provider,
			Industry:   c.Industry,
			Title:      c.Title,
			URL:        c.URL,
			ImageURL:   c.ImageURL,
			License:    c.License,
			LicenseURL: c.LicenseURL,
			Tags:       unionTags(nil, c.Tags),
			Score:      c.Score,
			FirstSeen:  now,
			LastSeen:   now,
			UsedCount:  0,
		})
	}

	return out
}

// unionTags appends the tags of b missing from a, keeping order, and caps
// the result at MaxTags.
func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	if len(out) > MaxTags {
		out = out[:MaxTags]
	}
	return out
}

// Rank is the eviction ordering value of an entry: relevance first, then a
// small recency tie-break, then a bounded bonus for prior use.
func Rank(e domain.PoolEntry) float64 {
	used := e.UsedCount
	if used > MaxUsedBonus {
		used = MaxUsedBonus
	}
	if used < 0 {
		used = 0
	}
	return e.Score + float64(e.LastSeen)/RecencyDivisor + float64(used)*UsedWeight
}

// EvictToCap keeps the limit highest ranked entries. limit is raised to MinCap.
func EvictToCap(items []domain.PoolEntry, limit int) []domain.PoolEntry {
	kept, _ := SplitAtCap(items, limit)
	return kept
}

// SplitAtCap ranks items (stable, descending) and splits them into the kept
// head and the evicted tail. items itself is not reordered.
func SplitAtCap(items []domain.PoolEntry, limit int) (kept, evicted []domain.PoolEntry) {
	if limit < MinCap {
		limit = MinCap
	}

	sorted := make([]domain.PoolEntry, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Rank(sorted[i]) > Rank(sorted[j])
	})

	if len(sorted) <= limit {
		return sorted, nil
	}
	return sorted[:limit], sorted[limit:]
}

// RecordUse increments UsedCount of the entry with key. LastSeen is left
// alone: a use is not a sighting. It returns a new slice; items is left as is.
func RecordUse(items []domain.PoolEntry, key string) ([]domain.PoolEntry, error) {
	out := make([]domain.PoolEntry, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Key == key {
			out[i].UsedCount++
			return out, nil
		}
	}
	return nil, fmt.Errorf("record use of %q: %w", key, domain.ErrNotFound)
}

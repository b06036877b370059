package scoring

import (
	"strings"

	"imagepool/internal/domain"
)

// CoverWeights score existing pool entries for cover selection.
type CoverWeights struct {
	TagInContext float64
	// FewTags is added when an entry has fewer than MinTags tags.
	FewTags float64
	MinTags int
	// Boost is added when both the context and the entry's tags mention one
	// of BoostTerms.
	Boost      float64
	BoostTerms []string
}

var DefaultCoverWeights = CoverWeights{
	TagInContext: 30,
	FewTags:      -10,
	MinTags:      4,
	Boost:        20,
	BoostTerms:   []string{"ai", "人工智能"},
}

// CoverScore rates a pool entry against ctx with DefaultCoverWeights.
func CoverScore(entry domain.PoolEntry, ctx string) float64 {
	return DefaultCoverWeights.Score(entry, ctx)
}

// Score starts from the entry's curation weight and adds tag matches.
func (w CoverWeights) Score(entry domain.PoolEntry, ctx string) float64 {
	ctxL := strings.ToLower(ctx)
	score := entry.Weight

	for _, t := range entry.Tags {
		if t == "" {
			continue
		}
		if strings.Contains(ctxL, strings.ToLower(t)) {
			score += w.TagInContext
		}
	}

	if w.boosted(entry.Tags, ctxL) {
		score += w.Boost
	}

	if len(entry.Tags) < w.MinTags {
		score += w.FewTags
	}
	return score
}

func (w CoverWeights) boosted(tags []string, ctxL string) bool {
	inCtx := false
	for _, term := range w.BoostTerms {
		if strings.Contains(ctxL, term) {
			inCtx = true
			break
		}
	}
	if !inCtx {
		return false
	}
	for _, t := range tags {
		tl := strings.ToLower(t)
		for _, term := range w.BoostTerms {
			if tl == term {
				return true
			}
		}
	}
	return false
}

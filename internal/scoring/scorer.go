// Package scoring computes relevance scores for image candidates and pool
// entries against an article context. Everything here is pure.
package scoring

import (
	"strings"

	"imagepool/internal/domain"
)

// MaxContextRunes bounds the heading block of an article context.
const MaxContextRunes = 2000

// Weights are the additive terms of the candidate score.
type Weights struct {
	TagInContext float64
	TagInTitle   float64
	CCLicense    float64
	BadTitle     float64
	BadTokens    []string
}

// DefaultWeights are the weights used by the pool maintainer.
var DefaultWeights = Weights{
	TagInContext: 20,
	TagInTitle:   10,
	CCLicense:    10,
	BadTitle:     -15,
	BadTokens:    []string{"meme", "cartoon"},
}

// Score rates a candidate against ctx and the article's tags with DefaultWeights.
func Score(ctx string, cand domain.Candidate, tags []string) float64 {
	return DefaultWeights.Score(ctx, cand, tags)
}

// Score rates a candidate against ctx and tags. The result is unbounded and
// only meaningful relative to other scores from the same run.
func (w Weights) Score(ctx string, cand domain.Candidate, tags []string) float64 {
	ctxL := strings.ToLower(ctx)
	title := strings.ToLower(cand.Title)
	lic := strings.ToLower(cand.License)

	score := 0.0
	for _, t := range tags {
		tl := strings.ToLower(t)
		if tl == "" {
			continue
		}
		if strings.Contains(ctxL, tl) {
			score += w.TagInContext
		}
		if strings.Contains(title, tl) {
			score += w.TagInTitle
		}
	}

	if strings.Contains(lic, "cc") {
		score += w.CCLicense
	}

	for _, bad := range w.BadTokens {
		if strings.Contains(title, bad) {
			score += w.BadTitle
			break
		}
	}

	return score
}

// BuildContext joins the title with the article's "##"/"###" heading lines.
// The heading block is truncated to MaxContextRunes.
func BuildContext(title, markdown string) string {
	var headings []string
	for _, ln := range strings.Split(markdown, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.HasPrefix(ln, "## ") || strings.HasPrefix(ln, "### ") {
			headings = append(headings, ln)
		}
	}
	block := strings.Join(headings, "\n")
	if r := []rune(block); len(r) > MaxContextRunes {
		block = string(r[:MaxContextRunes])
	}
	return title + "\n" + block
}

// Package cover selects an existing pool entry as an article's cover image,
// downloads it, and records where it came from.
package cover

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"imagepool/internal/domain"
	"imagepool/internal/scoring"
)

// MaxNewsTitles bounds how many news items feed the cover context.
const MaxNewsTitles = 25

// NewsItem is one source article the post was written from.
type NewsItem struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Site   string `json:"site"`
}

type newsDocument struct {
	Items []NewsItem `json:"items"`
}

// LoadNews reads the raw news JSON written by the collector. A missing or
// unreadable file yields no items.
func LoadNews(fs afero.Fs, path string) ([]NewsItem, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read news %s: %w", path, err)
	}
	var doc newsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse news %s: %w", path, err)
	}
	return doc.Items, nil
}

var spaces = regexp.MustCompile(`\s+`)

// BuildContext joins the title, the markdown headings and up to
// MaxNewsTitles news titles and source names, one per line.
func BuildContext(title, markdown string, news []NewsItem) string {
	var parts []string
	if t := strings.TrimSpace(spaces.ReplaceAllString(title, " ")); t != "" {
		parts = append(parts, t)
	}

	for _, ln := range strings.Split(markdown, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.HasPrefix(ln, "## ") || strings.HasPrefix(ln, "### ") {
			if h := strings.TrimSpace(strings.TrimLeft(ln, "# ")); h != "" {
				parts = append(parts, h)
			}
		}
	}

	if len(news) > MaxNewsTitles {
		news = news[:MaxNewsTitles]
	}
	for _, it := range news {
		if it.Title != "" {
			parts = append(parts, it.Title)
		}
		src := it.Source
		if src == "" {
			src = it.Site
		}
		if src != "" {
			parts = append(parts, src)
		}
	}
	return strings.Join(parts, "\n")
}

// Candidates concatenates pool and seed entries, keeping the first entry of
// each key.
func Candidates(pool, seed []domain.PoolEntry) []domain.PoolEntry {
	seen := make(map[string]struct{}, len(pool)+len(seed))
	out := make([]domain.PoolEntry, 0, len(pool)+len(seed))
	for _, group := range [][]domain.PoolEntry{pool, seed} {
		for _, e := range group {
			if _, dup := seen[e.Key]; dup {
				continue
			}
			seen[e.Key] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// Picker chooses the best matching entry. It never modifies its input.
type Picker struct {
	weights scoring.CoverWeights
}

func NewPicker() *Picker {
	return &Picker{weights: scoring.DefaultCoverWeights}
}

// Pick returns the highest scoring entry of industry with an image URL.
// Ties keep input order. It fails with domain.ErrNotFound when no entry
// qualifies.
func (p *Picker) Pick(entries []domain.PoolEntry, industry, ctx string) (domain.PoolEntry, error) {
	type ranked struct {
		entry domain.PoolEntry
		score float64
	}
	var cands []ranked
	for _, e := range entries {
		if e.Industry != industry || strings.TrimSpace(e.ImageURL) == "" {
			continue
		}
		cands = append(cands, ranked{entry: e, score: p.weights.Score(e, ctx)})
	}
	if len(cands) == 0 {
		return domain.PoolEntry{}, fmt.Errorf("no cover for industry %q: %w", industry, domain.ErrNotFound)
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	return cands[0].entry, nil
}

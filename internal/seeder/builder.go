// Package seeder bulk-populates the industry-tagged seed pool used as a
// fallback by the cover picker.
package seeder

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"imagepool/internal/domain"
	"imagepool/internal/source"
	"imagepool/internal/storage"
)

const (
	// MinPerIndustry and MaxPerIndustry clamp the per-industry target.
	MinPerIndustry = 5
	MaxPerIndustry = 60
	// MaxTags bounds the tags of one seed item.
	MaxTags = 30

	primaryWeight = 100
	relaxedWeight = 50
)

// Hint is the tag and query set searched for one industry.
type Hint struct {
	Industry string
	Tags     []string
	Queries  []string
}

// DefaultHints covers the industries the blog publishes in.
var DefaultHints = []Hint{
	{"technology", []string{"AI", "人工智能", "chip", "circuit", "semiconductor", "data center", "cloud", "robot"},
		[]string{"AI circuit board", "data center servers", "machine learning abstract", "robot arm factory ai", "cloud computing infrastructure"}},
	{"finance", []string{"金融", "风控", "risk", "compliance", "fintech", "payment", "bank"},
		[]string{"banking technology", "risk management", "fintech payment", "financial dashboard", "fraud detection"}},
	{"healthcare", []string{"医疗", "healthcare", "medtech", "diagnosis", "imaging", "AI"},
		[]string{"medical technology AI", "diagnostic imaging", "hospital digital", "health data", "clinical laboratory"}},
	{"education", []string{"教育", "learning", "edtech", "课程", "online learning"},
		[]string{"online learning", "education technology", "classroom technology", "training", "skills learning"}},
	{"automotive", []string{"汽车", "EV", "新能源", "battery", "charging", "autonomous"},
		[]string{"electric vehicle charging", "EV battery", "autonomous driving", "car factory", "vehicle technology"}},
	{"retail", []string{"零售", "retail", "ecommerce", "warehouse", "inventory", "supply chain"},
		[]string{"retail store", "ecommerce warehouse", "inventory management", "checkout", "consumer shopping"}},
	{"manufacturing", []string{"制造", "factory", "automation", "robot", "quality", "industrial"},
		[]string{"smart factory", "industrial automation", "robotic arm factory", "manufacturing quality", "industrial iot"}},
	{"foreign_trade", []string{"外贸", "export", "shipping", "logistics", "customs", "tariff"},
		[]string{"shipping containers port", "logistics supply chain", "cargo ship", "international trade", "customs inspection"}},
	{"scientific_instruments", []string{"科研", "仪器", "lab", "microscope", "spectrometer", "research"},
		[]string{"laboratory microscope", "scientific instrument lab", "research laboratory equipment", "spectrometer", "laboratory automation"}},
	{"reagents", []string{"试剂", "reagent", "biotech", "PCR", "protein", "lab"},
		[]string{"biotechnology laboratory", "PCR lab", "reagent bottles", "molecular biology", "cell culture"}},
}

// Builder searches a source for every hint and assembles a seed document.
type Builder struct {
	src      source.Source
	hints    []Hint
	pageSize int
	pause    time.Duration
	log      logrus.FieldLogger
}

// NewBuilder creates a Builder over DefaultHints.
func NewBuilder(src source.Source, pageSize int, logger logrus.FieldLogger) *Builder {
	return &Builder{
		src:      src,
		hints:    DefaultHints,
		pageSize: pageSize,
		pause:    120 * time.Millisecond,
		log:      logger.WithField("component", "seeder"),
	}
}

// ClampTarget bounds the per-industry target.
func ClampTarget(n int) int {
	if n < MinPerIndustry {
		return MinPerIndustry
	}
	if n > MaxPerIndustry {
		return MaxPerIndustry
	}
	return n
}

// Build collects up to perIndustry (clamped) items per industry.
func (b *Builder) Build(ctx context.Context, perIndustry int) (storage.SeedDocument, error) {
	target := ClampTarget(perIndustry)
	doc := storage.SeedDocument{Version: 1, Source: b.src.Provider(), Generated: true}

	for _, h := range b.hints {
		items, err := b.buildIndustry(ctx, h, target)
		if err != nil {
			return storage.SeedDocument{}, err
		}
		b.log.WithFields(logrus.Fields{"industry": h.Industry, "items": len(items)}).Info("Industry seeded")
		doc.Pool = append(doc.Pool, items...)
	}
	return doc, nil
}

type pass struct {
	queries []string
	accept  func(license string) bool
	weight  func(qi int) float64
}

func (b *Builder) buildIndustry(ctx context.Context, h Hint, target int) ([]storage.SeedItem, error) {
	relaxedQueries := h.Queries
	if len(relaxedQueries) > 2 {
		relaxedQueries = relaxedQueries[:2]
	}
	if len(relaxedQueries) == 0 {
		relaxedQueries = []string{h.Industry}
	}
	passes := []pass{
		{queries: h.Queries, accept: source.IsPermissive, weight: func(qi int) float64 { return float64(primaryWeight - qi) }},
		{queries: relaxedQueries, accept: source.IsCreativeCommons, weight: func(int) float64 { return relaxedWeight }},
	}

	var picked []storage.SeedItem
	seen := map[string]struct{}{}

	for _, p := range passes {
		for qi, q := range p.queries {
			if len(picked) >= target {
				return picked, nil
			}
			if err := b.wait(ctx); err != nil {
				return nil, err
			}

			res, err := b.src.Search(ctx, q, b.pageSize)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				b.log.WithError(&domain.FetchError{Provider: b.src.Provider(), Query: q, Err: err}).
					Warn("Seed query failed, skipping")
				continue
			}

			base := append(append([]string(nil), h.Tags...), Tokenize(q)...)
			for _, c := range res {
				if len(picked) >= target {
					break
				}
				if c.ID == "" {
					continue
				}
				if _, dup := seen[c.ID]; dup {
					continue
				}
				if !p.accept(c.License) || strings.TrimSpace(c.ImageURL) == "" {
					continue
				}
				picked = append(picked, b.item(h.Industry, base, c, p.weight(qi)))
				seen[c.ID] = struct{}{}
			}
			b.log.WithFields(logrus.Fields{
				"industry": h.Industry,
				"picked":   fmt.Sprintf("%d/%d", len(picked), target),
				"query":    q,
			}).Debug("Seed query done")
		}
	}
	return picked, nil
}

func (b *Builder) item(industry string, base []string, c domain.Candidate, weight float64) storage.SeedItem {
	tags := dedupe(append(append([]string(nil), base...), Tokenize(c.Title)...))
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	provider := c.Provider
	if provider == "" {
		provider = b.src.Provider()
	}
	return storage.SeedItem{
		ID:         c.ID,
		Industry:   industry,
		Tags:       tags,
		Title:      c.Title,
		URL:        c.URL,
		ImageURL:   c.ImageURL,
		License:    strings.ToUpper(c.License),
		LicenseURL: c.LicenseURL,
		Provider:   provider,
		Weight:     weight,
	}
}

func (b *Builder) wait(ctx context.Context) error {
	if b.pause <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(b.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var tagSplit = regexp.MustCompile(`[^A-Za-z0-9\x{4e00}-\x{9fff}\-]+`)

// Tokenize splits s into tag words of at least two characters. Case and
// CJK runs are preserved.
func Tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range tagSplit.Split(s, -1) {
		if utf8.RuneCountInString(p) < 2 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

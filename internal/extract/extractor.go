// Package extract derives image-search tags and queries from an article with
// fast, transparent heuristics.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"imagepool/internal/domain"
)

// Extractor produces tags and queries for one article.
type Extractor interface {
	Extract(ctx context.Context, article domain.Article) (domain.Keywords, error)
}

// Article types.
const (
	TypeEvent    = "event"
	TypeAnalysis = "analysis"
	TypeMixed    = "mixed"
)

const (
	maxNewsTitles = 25
	maxTags       = 30
	maxQueries    = 12
	maxEntities   = 20
	minQueryLen   = 4
	bodyExcerpt   = 2000
)

var (
	analysisTokens = []string{"趋势", "影响", "风险", "机会", "指标", "模型", "原理", "机制", "方法", "重塑", "范式", "结构"}
	eventTokens    = []string{"发布", "发布会", "融资", "估值", "裁员", "收购", "广告", "比赛", "超级碗", "事故", "禁令", "监管", "起诉"}

	knownEntities = []string{
		"OpenAI", "Anthropic", "Google", "Apple", "Meta", "Amazon", "Microsoft",
		"Super Bowl", "Levi", "Levi’s Stadium", "Washington Post", "Tumblr",
	}
	advertisers = []string{"openai", "anthropic", "google", "apple", "meta", "amazon", "microsoft"}

	stopEntities    = map[string]bool{"the": true, "and": true, "for": true, "with": true, "from": true}
	genericEntities = map[string]bool{"AI": true, "GitHub": true, "Linux": true, "Hacker News": true}

	capitalized = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&’']+(?:\s+[A-Z][A-Za-z0-9&’']+)*)\b`)
)

// Heuristic is the default Extractor.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

// Extract classifies the article and builds tags and queries from its
// headings, news titles and industry.
func (h *Heuristic) Extract(ctx context.Context, article domain.Article) (domain.Keywords, error) {
	if strings.TrimSpace(article.Title) == "" && strings.TrimSpace(article.Markdown) == "" {
		return domain.Keywords{}, fmt.Errorf("%w: article has neither title nor body", domain.ErrExtraction)
	}

	headings := Headings(article.Markdown)
	titles := article.NewsTitles
	if len(titles) > maxNewsTitles {
		titles = titles[:maxNewsTitles]
	}

	parts := []string{article.Title}
	parts = append(parts, headings...)
	parts = append(parts, titles...)
	parts = append(parts, truncateRunes(article.Markdown, bodyExcerpt))
	text := strings.Join(parts, "\n")
	textL := strings.ToLower(text)

	typ := Classify(text)
	entities := Entities(titles)

	var tags []string
	switch typ {
	case TypeEvent:
		tags = append(tags, "事件", "现场", "品牌", "广告")
	case TypeAnalysis:
		tags = append(tags, "分析", "趋势", "框架", "原理")
	default:
		tags = append(tags, "行业", "观察")
	}
	for _, t := range eventTokens {
		if strings.Contains(text, t) {
			tags = append(tags, t)
		}
	}
	tags = append(tags, head(entities, 12)...)

	var queries []string
	if typ == TypeEvent {
		superBowl := strings.Contains(text, "超级碗") || strings.Contains(textL, "super bowl")

		var scene []string
		if strings.Contains(text, "广告") || strings.Contains(textL, "ads") || strings.Contains(textL, "advert") {
			scene = append(scene, "advertising", "commercial")
		}
		if superBowl {
			scene = append(scene, "Super Bowl", "stadium")
			queries = append(queries, "Super Bowl AI advertising", "Super Bowl ads AI", "Levi's Stadium Super Bowl")
		}

		for _, e := range head(entities, 8) {
			if !containsAny(strings.ToLower(e), advertisers) {
				continue
			}
			queries = append(queries, e+" advertising")
			if len(scene) > 0 {
				queries = append(queries, e+" "+strings.Join(head(scene, 2), " "))
			}
		}
		queries = append(queries, article.Industry+" conference stage audience")
	} else {
		base := strings.TrimSpace(article.Title)
		if base == "" && len(headings) > 0 {
			base = headings[0]
		}
		if base != "" {
			queries = append(queries, base)
		}
		queries = append(queries, article.Industry+" diagram")
	}

	var clean []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if len([]rune(q)) >= minQueryLen {
			clean = append(clean, q)
		}
	}

	kw := domain.Keywords{
		Type:     typ,
		Tags:     head(dedupe(tags), maxTags),
		Queries:  head(dedupe(clean), maxQueries),
		Entities: head(entities, maxEntities),
		Headings: head(headings, 20),
	}
	if len(kw.Queries) == 0 {
		return kw, fmt.Errorf("%w: no queries for %q", domain.ErrExtraction, article.Title)
	}
	return kw, nil
}

// Classify labels text as an event report, an analysis piece, or mixed.
func Classify(text string) string {
	if strings.Contains(text, "超级碗") || strings.Contains(strings.ToLower(text), "super bowl") {
		return TypeEvent
	}
	a, e := 0, 0
	for _, t := range analysisTokens {
		if strings.Contains(text, t) {
			a++
		}
	}
	for _, t := range eventTokens {
		if strings.Contains(text, t) {
			e++
		}
	}
	switch {
	case e >= a && e >= 1:
		return TypeEvent
	case a >= 2:
		return TypeAnalysis
	default:
		return TypeMixed
	}
}

// Entities pulls capitalised phrases and known names out of news titles.
func Entities(titles []string) []string {
	var ents []string
	for _, t := range titles {
		for _, m := range capitalized.FindAllStringSubmatch(t, -1) {
			s := m[1]
			if len(s) < 3 || stopEntities[strings.ToLower(s)] {
				continue
			}
			ents = append(ents, s)
		}
	}
	for _, k := range knownEntities {
		for _, t := range titles {
			if strings.Contains(t, k) {
				ents = append(ents, k)
				break
			}
		}
	}

	var out []string
	for _, e := range ents {
		e = strings.TrimSpace(e)
		if e == "" || genericEntities[e] {
			continue
		}
		out = append(out, e)
	}
	return dedupe(out)
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

func head(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

package extract

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the subset of Hugo front matter the pool jobs read.
type FrontMatter struct {
	Title      string   `yaml:"title"`
	Slug       string   `yaml:"slug"`
	Categories []string `yaml:"-"`
}

// SplitFrontMatter separates a leading "---" YAML block from the body.
// Documents without one return a zero FrontMatter and the input unchanged.
func SplitFrontMatter(md string) (FrontMatter, string, error) {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	if !strings.HasPrefix(md, "---\n") {
		return FrontMatter{}, md, nil
	}
	end := strings.Index(md[4:], "\n---")
	if end == -1 {
		return FrontMatter{}, md, nil
	}
	block := md[4 : 4+end]
	body := strings.TrimPrefix(md[4+end+len("\n---"):], "\n")

	var raw struct {
		Title      string    `yaml:"title"`
		Slug       string    `yaml:"slug"`
		Categories yaml.Node `yaml:"categories"`
	}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return FrontMatter{}, md, fmt.Errorf("parsing front matter: %w", err)
	}

	fm := FrontMatter{Title: raw.Title, Slug: raw.Slug}
	switch raw.Categories.Kind {
	case yaml.SequenceNode:
		if err := raw.Categories.Decode(&fm.Categories); err != nil {
			return FrontMatter{}, md, fmt.Errorf("parsing categories: %w", err)
		}
	case yaml.ScalarNode:
		if v := strings.TrimSpace(raw.Categories.Value); v != "" {
			fm.Categories = []string{v}
		}
	}
	return fm, body, nil
}

// Industry is the first category, the convention used for posts.
func (fm FrontMatter) Industry() string {
	for _, c := range fm.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// Headings returns the text of "##" and "###" headings in document order.
func Headings(md string) []string {
	var out []string
	for _, ln := range strings.Split(md, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.HasPrefix(ln, "## ") || strings.HasPrefix(ln, "### ") {
			out = append(out, strings.TrimSpace(strings.TrimLeft(ln, "# ")))
		}
	}
	return out
}

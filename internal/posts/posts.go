// Package posts finds recently published articles and feeds them to the pool
// maintainer, so the pool keeps learning between publishes.
package posts

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"imagepool/internal/cover"
	"imagepool/internal/domain"
	"imagepool/internal/extract"
)

// DefaultIndustry is used for posts without a category.
const DefaultIndustry = "technology"

// ErrNoIndustry is returned by LoadArticle, with the rest of the article
// filled in, when neither the caller nor the front matter names an industry.
var ErrNoIndustry = errors.New("industry is required")

// skipSuffixes are derived documents written next to a post.
var skipSuffixes = []string{"-wechat.md", "-quality-report.md"}

// Post is a markdown file found by Recent.
type Post struct {
	Path    string
	ModTime time.Time
}

// Recent returns the posts directly under dir modified at or after since,
// newest first, at most limit of them. limit is raised to 1.
func Recent(fs afero.Fs, dir string, since time.Time, limit int) ([]Post, error) {
	matches, err := afero.Glob(fs, filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing posts in %s: %w", dir, err)
	}

	var out []Post
	for _, path := range matches {
		if derived(path) {
			continue
		}
		info, err := fs.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(since) {
			continue
		}
		out = append(out, Post{Path: path, ModTime: info.ModTime()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Path < out[j].Path
	})
	if limit < 1 {
		limit = 1
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func derived(path string) bool {
	name := filepath.Base(path)
	for _, s := range skipSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// LoadArticle reads an article for training. Explicit title and industry win
// over the front matter of mdPath; newsPath, when set, contributes the news
// titles.
func LoadArticle(fs afero.Fs, log logrus.FieldLogger, mdPath, newsPath, title, industry string) (domain.Article, error) {
	article := domain.Article{Title: title, Industry: industry}

	if mdPath != "" {
		raw, err := afero.ReadFile(fs, mdPath)
		if err != nil {
			return article, fmt.Errorf("reading %s: %w", mdPath, err)
		}
		fm, body, err := extract.SplitFrontMatter(string(raw))
		if err != nil {
			log.WithError(err).WithField("path", mdPath).Warn("Ignoring unreadable front matter")
		}
		article.Markdown = body
		article.Slug = fm.Slug
		if article.Title == "" {
			article.Title = fm.Title
		}
		if article.Industry == "" {
			article.Industry = fm.Industry()
		}
	}

	news, err := cover.LoadNews(fs, newsPath)
	if err != nil {
		return article, err
	}
	for _, it := range news {
		if it.Title != "" {
			article.NewsTitles = append(article.NewsTitles, it.Title)
		}
	}

	if article.Industry == "" {
		return article, ErrNoIndustry
	}
	return article, nil
}

// stem is the file name without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

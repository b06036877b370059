package domain

// Article is the per-publish input to the pool maintainer and the cover picker.
type Article struct {
	Title    string
	Slug     string
	Industry string
	// Markdown is the full article body, front matter included or not.
	Markdown string
	// NewsTitles are headlines of the source news items the article was built from.
	NewsTitles []string
}

// Keywords is what an extractor produces for one article.
type Keywords struct {
	Type     string   `json:"type"`
	Tags     []string `json:"tags"`
	Queries  []string `json:"queries"`
	Entities []string `json:"entities,omitempty"`
	Headings []string `json:"headings,omitempty"`
}

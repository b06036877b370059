// Package scraper reads author and license details from an image's landing
// page with a headless browser.
package scraper

import (
	"context"

	"imagepool/internal/domain"
)

// Scraper fetches attribution metadata for a landing page URL.
type Scraper interface {
	// ScrapeAttribution returns what the page says about the image. Missing
	// fields are left empty; only navigation failures are errors.
	ScrapeAttribution(ctx context.Context, url string) (domain.Attribution, error)
}

// Nop never scrapes. Used when attribution scraping is disabled.
type Nop struct{}

func (Nop) ScrapeAttribution(context.Context, string) (domain.Attribution, error) {
	return domain.Attribution{}, nil
}

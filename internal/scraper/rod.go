package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"imagepool/internal/domain"
)

// PageTimeout bounds one page load and extraction.
const PageTimeout = 30 * time.Second

// probe reads the first non-empty value among selectors. An empty attr
// reads the element text.
type probe struct {
	selectors []string
	attr      string
}

var (
	titleProbe = probe{selectors: []string{`h1#firstHeading`, `title`}}
	descProbe  = probe{selectors: []string{`meta[name="description"]`, `meta[property="og:description"]`}, attr: "content"}
	// Commons file pages keep the author in the information template.
	authorTextProbe = probe{selectors: []string{`td#fileinfotpl_aut + td`, `.creator-name`, `[itemprop="creator"]`}}
	authorMetaProbe = probe{selectors: []string{`meta[name="author"]`, `meta[property="article:author"]`}, attr: "content"}
	licenseProbe    = probe{selectors: []string{`link[rel="license"]`, `a[rel="license"]`}, attr: "href"}
)

// RodScraper implements Scraper with a browser launched per call.
type RodScraper struct {
	log logrus.FieldLogger
}

// NewRodScraper creates a scraper. The browser binary is resolved on first use.
func NewRodScraper(logger logrus.FieldLogger) *RodScraper {
	return &RodScraper{log: logger.WithField("component", "scraper")}
}

// ScrapeAttribution loads url and reads title, description, author and
// license link.
func (s *RodScraper) ScrapeAttribution(ctx context.Context, url string) (attr domain.Attribution, err error) {
	log := s.log.WithField("url", url)
	log.Info("Attempting to scrape attribution")

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return domain.Attribution{}, errors.New("rod browser dependency not found")
	}
	l := launcher.New().Bin(path)
	defer l.Cleanup()

	u, err := l.Launch()
	if err != nil {
		log.WithError(err).Error("Failed to launch browser")
		return domain.Attribution{}, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return domain.Attribution{}, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return domain.Attribution{}, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod page")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, PageTimeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Scraping timed out")
			return domain.Attribution{}, fmt.Errorf("scraping timed out for %s: %w", url, pageCtx.Err())
		}
		log.WithError(err).Error("Failed to wait for page load")
		return domain.Attribution{}, fmt.Errorf("failed waiting for page load: %w", err)
	}

	attr = domain.Attribution{
		Title:       s.read(page, titleProbe, log),
		Description: s.read(page, descProbe, log),
		Author:      s.read(page, authorTextProbe, log),
		LicenseURL:  s.read(page, licenseProbe, log),
	}
	if attr.Author == "" {
		attr.Author = s.read(page, authorMetaProbe, log)
	}

	log.WithFields(logrus.Fields{
		"author":      attr.Author,
		"license_url": attr.LicenseURL,
	}).Info("Attribution scraping completed")
	return attr, nil
}

func (s *RodScraper) read(page *rod.Page, p probe, log logrus.FieldLogger) string {
	for _, sel := range p.selectors {
		has, el, err := page.Has(sel)
		if err != nil {
			log.WithError(err).WithField("selector", sel).Warn("Error searching for element")
			continue
		}
		if !has {
			continue
		}

		var v string
		if p.attr == "" {
			v, err = el.Text()
		} else {
			var ptr *string
			ptr, err = el.Attribute(p.attr)
			if ptr != nil {
				v = *ptr
			}
		}
		if err != nil {
			log.WithError(err).WithField("selector", sel).Debug("Failed to read element")
			continue
		}
		if v = clean(v); v != "" {
			return v
		}
	}
	return ""
}

// clean collapses whitespace runs into single spaces.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

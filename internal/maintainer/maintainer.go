// Package maintainer runs the per-article training pass that keeps the
// flowing image pool fresh, and the periodic compaction of that pool.
package maintainer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	concpool "github.com/sourcegraph/conc/pool"

	"imagepool/internal/domain"
	"imagepool/internal/extract"
	"imagepool/internal/scoring"
	"imagepool/internal/source"
	"imagepool/internal/storage"
)

// Config bounds the work of one run.
type Config struct {
	Cap            int
	MaxQueries     int
	PageSize       int
	FetchTimeout   time.Duration
	Concurrency    int
	CacheMaxPerRun int
}

// DefaultConfig mirrors the production defaults.
var DefaultConfig = Config{
	Cap:            storage.DefaultCap,
	MaxQueries:     10,
	PageSize:       20,
	FetchTimeout:   source.DefaultTimeout,
	Concurrency:    4,
	CacheMaxPerRun: 30,
}

// ThumbStore caches a thumbnail for a pool key. See diskcache.ThumbCache.
type ThumbStore interface {
	Store(ctx context.Context, key, url string) (bool, error)
}

// Report is the outcome of one Train run.
type Report struct {
	RunID         string   `json:"run_id"`
	Added         int      `json:"added"`
	New           int      `json:"new"`
	Kept          int      `json:"kept"`
	Evicted       int      `json:"evicted"`
	Cached        int      `json:"cached"`
	FailedQueries int      `json:"failed_queries"`
	Queries       []string `json:"queries"`
}

// Maintainer merges freshly scored candidates into the persisted pool.
type Maintainer struct {
	cfg       Config
	repo      storage.PoolRepository
	extractor extract.Extractor
	sources   []source.Source
	weights   scoring.Weights
	archive   storage.ArchiveOpener
	thumbs    ThumbStore
	log       logrus.FieldLogger
	nowFn     func() time.Time
	newRunID  func() string
}

// New creates a Maintainer. At least one source is expected.
func New(cfg Config, repo storage.PoolRepository, extractor extract.Extractor, sources []source.Source, logger logrus.FieldLogger) *Maintainer {
	return &Maintainer{
		cfg:       normalize(cfg),
		repo:      repo,
		extractor: extractor,
		sources:   sources,
		weights:   scoring.DefaultWeights,
		log:       logger.WithField("component", "maintainer"),
		nowFn:     time.Now,
		newRunID:  uuid.NewString,
	}
}

// SetArchive records evicted entries in the archive returned by open. The
// archive is opened per operation and closed before it returns. Optional.
func (m *Maintainer) SetArchive(open storage.ArchiveOpener) { m.archive = open }

// SetThumbCache caches thumbnails of scored candidates. Optional.
func (m *Maintainer) SetThumbCache(t ThumbStore) { m.thumbs = t }

func normalize(cfg Config) Config {
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultConfig.Cap
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = DefaultConfig.MaxQueries
	}
	if cfg.PageSize < 5 {
		cfg.PageSize = 5
	}
	if cfg.PageSize > source.MaxPageSize {
		cfg.PageSize = source.MaxPageSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig.FetchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CacheMaxPerRun < 0 {
		cfg.CacheMaxPerRun = 0
	}
	return cfg
}

type fetchResult struct {
	index int
	query string
	src   source.Source
	cands []domain.Candidate
	err   error
}

// Train runs one pass for article: load, extract, fetch, score, merge, cap,
// save. Nothing is written unless every step up to the merge succeeded.
func (m *Maintainer) Train(ctx context.Context, article domain.Article) (Report, error) {
	report := Report{RunID: m.newRunID()}
	log := m.log.WithFields(logrus.Fields{
		"run_id":   report.RunID,
		"industry": article.Industry,
		"title":    article.Title,
	})

	pool, err := m.repo.Load(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load pool, aborting run")
		return report, err
	}

	kw, err := m.extractor.Extract(ctx, article)
	if err != nil {
		log.WithError(err).Error("Keyword extraction failed, aborting run")
		if !errors.Is(err, domain.ErrExtraction) {
			err = fmt.Errorf("%w: %v", domain.ErrExtraction, err)
		}
		return report, err
	}
	if len(kw.Queries) == 0 {
		log.Error("Extractor returned no queries, aborting run")
		return report, fmt.Errorf("%w: no queries", domain.ErrExtraction)
	}

	queries := kw.Queries
	if len(queries) > m.cfg.MaxQueries {
		queries = queries[:m.cfg.MaxQueries]
	}
	report.Queries = queries

	results := m.fetchAll(ctx, queries)
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("Run cancelled, pool left unchanged")
		return report, err
	}

	text := scoring.BuildContext(article.Title, article.Markdown)
	var scored []domain.ScoredCandidate
	var thumbs []thumbJob
	for _, r := range results {
		if r.err != nil {
			report.FailedQueries++
			log.WithError(r.err).WithField("query", r.query).Warn("Candidate fetch failed, skipping query")
			continue
		}
		for _, c := range r.cands {
			if c.ImageURL == "" {
				continue
			}
			provider := c.Provider
			if provider == "" {
				provider = r.src.Provider()
			}
			sc := domain.ScoredCandidate{
				Key:        domain.KeyFor(provider, c.ID),
				Provider:   provider,
				Industry:   article.Industry,
				Title:      c.Title,
				URL:        c.URL,
				ImageURL:   c.ImageURL,
				License:    c.License,
				LicenseURL: c.LicenseURL,
				Tags:       append([]string(nil), kw.Tags...),
				Score:      m.weights.Score(text, c, kw.Tags),
			}
			scored = append(scored, sc)

			thumb := c.ThumbnailURL
			if thumb == "" {
				thumb = c.ImageURL
			}
			thumbs = append(thumbs, thumbJob{key: sc.Key, url: thumb})
		}
	}
	report.Added = len(scored)

	merged := storage.Merge(pool.Items, scored, m.nowFn().Unix())
	report.New = len(merged) - len(pool.Items)

	kept, evicted := storage.SplitAtCap(merged, m.cfg.Cap)
	report.Kept = len(kept)
	report.Evicted = len(evicted)

	m.archiveEvicted(ctx, log, evicted)

	if _, err := m.repo.Save(ctx, kept); err != nil {
		log.WithError(err).Error("Failed to save pool")
		return report, fmt.Errorf("failed to save pool: %w", err)
	}

	report.Cached = m.cacheThumbs(ctx, log, thumbs)

	log.WithFields(logrus.Fields{
		"added":          report.Added,
		"new":            report.New,
		"kept":           report.Kept,
		"evicted":        report.Evicted,
		"cached":         report.Cached,
		"failed_queries": report.FailedQueries,
	}).Info("Pool training run completed")
	return report, nil
}

// fetchAll issues every (source, query) search concurrently and returns the
// results in a deterministic order once all of them have finished.
func (m *Maintainer) fetchAll(ctx context.Context, queries []string) []fetchResult {
	p := concpool.NewWithResults[fetchResult]().WithMaxGoroutines(m.cfg.Concurrency)

	i := 0
	for _, q := range queries {
		for _, src := range m.sources {
			index, query, src := i, q, src
			i++
			p.Go(func() fetchResult {
				fctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
				defer cancel()

				cands, err := src.Search(fctx, query, m.cfg.PageSize)
				if err != nil {
					err = &domain.FetchError{Provider: src.Provider(), Query: query, Err: err}
				}
				return fetchResult{index: index, query: query, src: src, cands: cands, err: err}
			})
		}
	}

	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	return results
}

type thumbJob struct {
	key string
	url string
}

func (m *Maintainer) cacheThumbs(ctx context.Context, log logrus.FieldLogger, jobs []thumbJob) int {
	if m.thumbs == nil || m.cfg.CacheMaxPerRun == 0 {
		return 0
	}
	cached := 0
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if cached >= m.cfg.CacheMaxPerRun {
			break
		}
		if _, dup := seen[j.key]; dup {
			continue
		}
		seen[j.key] = struct{}{}

		tctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		ok, err := m.thumbs.Store(tctx, j.key, j.url)
		cancel()
		if err != nil {
			log.WithError(err).WithField("key", j.key).Debug("Thumbnail not cached")
			continue
		}
		if ok {
			cached++
		}
	}
	return cached
}

// CompactReport is the outcome of Compact.
type CompactReport struct {
	Before int `json:"before"`
	After  int `json:"after"`
	Cap    int `json:"cap"`
}

// Compact re-applies the entry cap to the persisted pool.
func (m *Maintainer) Compact(ctx context.Context) (CompactReport, error) {
	pool, err := m.repo.Load(ctx)
	if err != nil {
		return CompactReport{}, err
	}

	kept, evicted := storage.SplitAtCap(pool.Items, m.cfg.Cap)
	m.archiveEvicted(ctx, m.log, evicted)
	if _, err := m.repo.Save(ctx, kept); err != nil {
		return CompactReport{}, fmt.Errorf("failed to save pool: %w", err)
	}

	report := CompactReport{Before: len(pool.Items), After: len(kept), Cap: m.cfg.Cap}
	m.log.WithFields(logrus.Fields{"before": report.Before, "after": report.After}).Info("Pool compacted")
	return report, nil
}

// archiveEvicted opens the archive, records evicted and closes it again.
// Failures are logged; the pool save goes ahead regardless.
func (m *Maintainer) archiveEvicted(ctx context.Context, log logrus.FieldLogger, evicted []domain.PoolEntry) {
	if m.archive == nil || len(evicted) == 0 {
		return
	}
	archive, err := m.archive()
	if err != nil {
		log.WithError(err).WithField("evicted", len(evicted)).Error("Eviction archive unavailable, evicted entries not archived")
		return
	}
	defer m.closeArchive(archive)

	if err := archive.Put(ctx, evicted); err != nil {
		log.WithError(err).Warn("Failed to archive evicted entries")
	}
}

func (m *Maintainer) closeArchive(a storage.Archive) {
	if err := a.Close(); err != nil {
		m.log.WithError(err).Error("Error closing archive")
	}
}

// ErrNoArchive is returned by archive operations when no archive is set.
var ErrNoArchive = errors.New("no eviction archive configured")

// Archived lists the archived entries, most recently evicted first.
func (m *Maintainer) Archived(ctx context.Context) ([]storage.ArchivedEntry, error) {
	if m.archive == nil {
		return nil, ErrNoArchive
	}
	archive, err := m.archive()
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer m.closeArchive(archive)
	return archive.List(ctx)
}

// RestoreReport is the outcome of Restore.
type RestoreReport struct {
	Key      string `json:"key"`
	Restored bool   `json:"restored"`
	Evicted  int    `json:"evicted"`
}

// Restore moves key from the archive back into the pool with a fresh
// last_seen. The entry competes for a slot like any other: when it does not
// rank within the cap it stays archived and the pool is not written. Entries
// it displaces are archived in its place.
func (m *Maintainer) Restore(ctx context.Context, key string) (RestoreReport, error) {
	report := RestoreReport{Key: key}
	if m.archive == nil {
		return report, ErrNoArchive
	}
	log := m.log.WithField("key", key)

	pool, err := m.repo.Load(ctx)
	if err != nil {
		return report, err
	}

	archive, err := m.archive()
	if err != nil {
		return report, fmt.Errorf("failed to open archive: %w", err)
	}
	defer m.closeArchive(archive)

	rec, err := archive.Get(ctx, key)
	if err != nil {
		return report, err
	}

	for _, e := range pool.Items {
		if e.Key == key {
			log.Info("Entry is already in the pool, dropping archive record")
			report.Restored = true
			return report, archive.Delete(ctx, key)
		}
	}

	entry := rec.Entry
	entry.LastSeen = m.nowFn().Unix()
	if entry.FirstSeen == 0 || entry.FirstSeen > entry.LastSeen {
		entry.FirstSeen = entry.LastSeen
	}
	items := make([]domain.PoolEntry, 0, len(pool.Items)+1)
	items = append(items, pool.Items...)
	items = append(items, entry)

	kept, evicted := storage.SplitAtCap(items, m.cfg.Cap)
	for _, e := range evicted {
		if e.Key == key {
			log.Info("Entry does not rank within the cap, left archived")
			return report, nil
		}
	}

	if len(evicted) > 0 {
		if err := archive.Put(ctx, evicted); err != nil {
			return report, fmt.Errorf("failed to archive displaced entries: %w", err)
		}
	}
	if _, err := m.repo.Save(ctx, kept); err != nil {
		return report, fmt.Errorf("failed to save pool: %w", err)
	}
	if err := archive.Delete(ctx, key); err != nil {
		log.WithError(err).Warn("Restored entry still has an archive record")
	}

	report.Restored = true
	report.Evicted = len(evicted)
	log.WithField("evicted", report.Evicted).Info("Archived entry restored")
	return report, nil
}

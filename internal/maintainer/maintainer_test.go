package maintainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagepool/internal/domain"
	"imagepool/internal/source"
	"imagepool/internal/storage"
)

const poolPath = "data/public_image_pool.json"

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeExtractor struct {
	kw  domain.Keywords
	err error
}

func (f fakeExtractor) Extract(ctx context.Context, a domain.Article) (domain.Keywords, error) {
	return f.kw, f.err
}

// fakeSource answers from a fixed table. Queries listed in hang block until
// their context is done.
type fakeSource struct {
	results  map[string][]domain.Candidate
	hang     map[string]bool
	onSearch func()
	calls    atomic.Int32
}

func (f *fakeSource) Provider() string { return domain.ProviderWikimedia }

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	f.calls.Add(1)
	if f.onSearch != nil {
		f.onSearch()
	}
	if f.hang[query] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	res := f.results[query]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type fakeArchive struct {
	storage.Archive
	put    []domain.PoolEntry
	err    error
	opens  int
	closes int
}

func (f *fakeArchive) Put(ctx context.Context, entries []domain.PoolEntry) error {
	f.put = append(f.put, entries...)
	return f.err
}

func (f *fakeArchive) Close() error {
	f.closes++
	return nil
}

func (f *fakeArchive) opener() storage.ArchiveOpener {
	return func() (storage.Archive, error) {
		f.opens++
		return f, nil
	}
}

type fakeThumbs struct {
	stored []string
}

func (f *fakeThumbs) Store(ctx context.Context, key, url string) (bool, error) {
	f.stored = append(f.stored, key)
	return true, nil
}

func cands(prefix string, n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		id := fmt.Sprintf("%s%d", prefix, i)
		out[i] = domain.Candidate{
			ID:       id,
			Title:    "File:" + id + ".jpg",
			URL:      "https://commons.example.org/wiki/File:" + id + ".jpg",
			ImageURL: "https://upload.example.org/" + id + ".jpg",
			License:  "CC BY-SA 4.0",
		}
	}
	return out
}

var article = domain.Article{
	Title:    "Chip makers race to build AI accelerators",
	Industry: "technology",
	Markdown: "## Semiconductor supply\ntext\n### Datacenter demand\n",
}

func newTestMaintainer(t *testing.T, cfg Config, src *fakeSource, ext fakeExtractor) (*Maintainer, *storage.JSONStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := storage.NewJSONStore(fs, poolPath, quietLogger())
	m := New(cfg, store, ext, []source.Source{src}, quietLogger())
	m.nowFn = func() time.Time { return time.Unix(1_760_000_000, 0) }
	m.newRunID = func() string { return "run-1" }
	return m, store, fs
}

func TestTrain_MergesAndSaves(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{
		"semiconductor": cands("a", 3),
		"datacenter":    cands("b", 2),
	}}
	ext := fakeExtractor{kw: domain.Keywords{Tags: []string{"semiconductor", "chip"}, Queries: []string{"semiconductor", "datacenter"}}}
	m, store, _ := newTestMaintainer(t, DefaultConfig, src, ext)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 5, report.Added)
	assert.Equal(t, 5, report.New)
	assert.Equal(t, 5, report.Kept)
	assert.Equal(t, 0, report.FailedQueries)
	assert.Equal(t, []string{"semiconductor", "datacenter"}, report.Queries)

	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pool.Items, 5)
	first := pool.Items[0]
	assert.Equal(t, "wikimedia:a0", first.Key)
	assert.Equal(t, "technology", first.Industry)
	assert.Equal(t, []string{"semiconductor", "chip"}, first.Tags)
	assert.Equal(t, int64(1_760_000_000), first.FirstSeen)
	assert.Greater(t, first.Score, 0.0)
}

func TestTrain_SecondRunUpdatesInPlace(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("a", 2)}}
	ext := fakeExtractor{kw: domain.Keywords{Tags: []string{"chip"}, Queries: []string{"chip"}}}
	m, store, _ := newTestMaintainer(t, DefaultConfig, src, ext)

	_, err := m.Train(context.Background(), article)
	require.NoError(t, err)

	m.nowFn = func() time.Time { return time.Unix(1_760_100_000, 0) }
	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)

	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pool.Items, 2)
	assert.Equal(t, int64(1_760_000_000), pool.Items[0].FirstSeen)
	assert.Equal(t, int64(1_760_100_000), pool.Items[0].LastSeen)
}

func TestTrain_TimedOutQueryIsSkipped(t *testing.T) {
	src := &fakeSource{
		results: map[string][]domain.Candidate{
			"q1": cands("a", 3),
			"q3": cands("c", 4),
		},
		hang: map[string]bool{"q2": true},
	}
	ext := fakeExtractor{kw: domain.Keywords{Tags: []string{"x"}, Queries: []string{"q1", "q2", "q3"}}}
	cfg := DefaultConfig
	cfg.FetchTimeout = 20 * time.Millisecond
	m, store, _ := newTestMaintainer(t, cfg, src, ext)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Added)
	assert.Equal(t, 1, report.FailedQueries)
	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, pool.Items, 7)
	assert.Equal(t, "wikimedia:a0", pool.Items[0].Key, "results keep query order")
	assert.Equal(t, "wikimedia:c0", pool.Items[3].Key)
}

func TestTrain_ExtractionFailureWritesNothing(t *testing.T) {
	src := &fakeSource{}
	m, _, fs := newTestMaintainer(t, DefaultConfig, src, fakeExtractor{err: errors.New("boom")})
	before := []byte(`{"version":1,"updated_at":"x","items":[]}`)
	require.NoError(t, afero.WriteFile(fs, poolPath, before, 0o644))

	_, err := m.Train(context.Background(), article)
	require.ErrorIs(t, err, domain.ErrExtraction)

	after, err := afero.ReadFile(fs, poolPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, src.calls.Load())
}

func TestTrain_NoQueriesIsExtractionError(t *testing.T) {
	m, _, fs := newTestMaintainer(t, DefaultConfig, &fakeSource{}, fakeExtractor{kw: domain.Keywords{Tags: []string{"a"}}})

	_, err := m.Train(context.Background(), article)
	require.ErrorIs(t, err, domain.ErrExtraction)

	exists, err := afero.Exists(fs, poolPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTrain_CorruptPoolAbortsBeforeFetching(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("a", 1)}}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip"}}}
	m, _, fs := newTestMaintainer(t, DefaultConfig, src, ext)
	require.NoError(t, afero.WriteFile(fs, poolPath, []byte("{not json"), 0o644))

	_, err := m.Train(context.Background(), article)
	require.ErrorIs(t, err, domain.ErrCorruptPool)

	raw, err := afero.ReadFile(fs, poolPath)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
	assert.Zero(t, src.calls.Load())
}

func TestTrain_EnforcesCapAndArchives(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("new", 20)}}
	ext := fakeExtractor{kw: domain.Keywords{Tags: []string{"chip"}, Queries: []string{"chip"}}}
	cfg := DefaultConfig
	cfg.Cap = 100
	m, store, _ := newTestMaintainer(t, cfg, src, ext)
	archive := &fakeArchive{}
	m.SetArchive(archive.opener())

	var existing []domain.PoolEntry
	for i := 0; i < 100; i++ {
		existing = append(existing, domain.PoolEntry{
			Key: fmt.Sprintf("wikimedia:old%d", i), Score: float64(i), FirstSeen: 1, LastSeen: 1,
		})
	}
	_, err := store.Save(context.Background(), existing)
	require.NoError(t, err)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, 100, report.Kept)
	assert.Equal(t, 20, report.Evicted)
	assert.Len(t, archive.put, 20)
	assert.Equal(t, 1, archive.opens)
	assert.Equal(t, 1, archive.closes)

	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, pool.Items, 100)
}

func TestTrain_ArchiveFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("a", 1)}}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip"}}}
	cfg := DefaultConfig
	cfg.Cap = 100
	m, store, _ := newTestMaintainer(t, cfg, src, ext)
	m.SetArchive((&fakeArchive{err: errors.New("disk full")}).opener())

	var existing []domain.PoolEntry
	for i := 0; i < 100; i++ {
		existing = append(existing, domain.PoolEntry{Key: fmt.Sprintf("wikimedia:old%d", i), Score: 50})
	}
	_, err := store.Save(context.Background(), existing)
	require.NoError(t, err)

	_, err = m.Train(context.Background(), article)
	require.NoError(t, err)
}

func TestTrain_SkipsCandidatesWithoutImage(t *testing.T) {
	cs := cands("a", 2)
	cs[1].ImageURL = ""
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cs}}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip"}}}
	m, _, _ := newTestMaintainer(t, DefaultConfig, src, ext)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
}

func TestTrain_RespectsMaxQueries(t *testing.T) {
	src := &fakeSource{}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"a", "b", "c", "d"}}}
	cfg := DefaultConfig
	cfg.MaxQueries = 2
	m, _, _ := newTestMaintainer(t, cfg, src, ext)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Queries)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTrain_CachesBoundedThumbnails(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("a", 5), "soc": cands("a", 5)}}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip", "soc"}}}
	cfg := DefaultConfig
	cfg.CacheMaxPerRun = 3
	m, _, _ := newTestMaintainer(t, cfg, src, ext)
	thumbs := &fakeThumbs{}
	m.SetThumbCache(thumbs)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Cached)
	assert.Equal(t, []string{"wikimedia:a0", "wikimedia:a1", "wikimedia:a2"}, thumbs.stored)
}

func TestCompact(t *testing.T) {
	cfg := DefaultConfig
	cfg.Cap = 100
	m, store, _ := newTestMaintainer(t, cfg, &fakeSource{}, fakeExtractor{})
	archive := &fakeArchive{}
	m.SetArchive(archive.opener())

	var existing []domain.PoolEntry
	for i := 0; i < 130; i++ {
		existing = append(existing, domain.PoolEntry{Key: fmt.Sprintf("wikimedia:%d", i), Score: float64(i)})
	}
	_, err := store.Save(context.Background(), existing)
	require.NoError(t, err)

	report, err := m.Compact(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CompactReport{Before: 130, After: 100, Cap: 100}, report)
	assert.Len(t, archive.put, 30)

	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wikimedia:129", pool.Items[0].Key)
}

func TestTrain_NoArchiveOpenWithoutEvictions(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("a", 3)}}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip"}}}
	m, _, _ := newTestMaintainer(t, DefaultConfig, src, ext)
	archive := &fakeArchive{}
	m.SetArchive(archive.opener())

	_, err := m.Train(context.Background(), article)
	require.NoError(t, err)
	assert.Zero(t, archive.opens)
}

func TestTrain_ArchiveOpenFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("new", 5)}}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip"}}}
	cfg := DefaultConfig
	cfg.Cap = 100
	m, store, _ := newTestMaintainer(t, cfg, src, ext)
	m.SetArchive(func() (storage.Archive, error) { return nil, errors.New("locked") })

	_, err := store.Save(context.Background(), oldEntries("old", 100))
	require.NoError(t, err)

	report, err := m.Train(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Evicted)

	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, pool.Items, 100)
}

func TestTrain_CancelledRunLeavesPoolUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		results:  map[string][]domain.Candidate{"chip": cands("a", 3)},
		hang:     map[string]bool{"soc": true},
		onSearch: cancel,
	}
	ext := fakeExtractor{kw: domain.Keywords{Queries: []string{"chip", "soc"}}}
	m, store, fs := newTestMaintainer(t, DefaultConfig, src, ext)

	_, err := store.Save(context.Background(), oldEntries("old", 3))
	require.NoError(t, err)
	before, err := afero.ReadFile(fs, poolPath)
	require.NoError(t, err)

	_, err = m.Train(ctx, article)
	require.ErrorIs(t, err, context.Canceled)

	after, err := afero.ReadFile(fs, poolPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

// Two maintainers on one badger directory take turns the way the daemon's
// compaction job and a one-shot training run do.
func TestArchive_SharedBetweenRuns(t *testing.T) {
	dir := t.TempDir()
	open := func() (storage.Archive, error) { return storage.NewBadgerArchive(dir, quietLogger()) }

	cfg := DefaultConfig
	cfg.Cap = 100

	daemon, daemonStore, _ := newTestMaintainer(t, cfg, &fakeSource{}, fakeExtractor{})
	daemon.SetArchive(open)
	_, err := daemonStore.Save(context.Background(), oldEntries("d", 110))
	require.NoError(t, err)

	src := &fakeSource{results: map[string][]domain.Candidate{"chip": cands("new", 7)}}
	trainer, trainerStore, _ := newTestMaintainer(t, cfg, src, fakeExtractor{kw: domain.Keywords{Queries: []string{"chip"}}})
	trainer.SetArchive(open)
	_, err = trainerStore.Save(context.Background(), oldEntries("t", 100))
	require.NoError(t, err)

	_, err = daemon.Compact(context.Background())
	require.NoError(t, err)
	report, err := trainer.Train(context.Background(), article)
	require.NoError(t, err)
	require.Equal(t, 7, report.Evicted)
	_, err = daemon.Compact(context.Background())
	require.NoError(t, err)

	archived, err := daemon.Archived(context.Background())
	require.NoError(t, err)
	assert.Len(t, archived, 10+7)
}

func TestRestore(t *testing.T) {
	cfg := DefaultConfig
	cfg.Cap = 100
	m, store, _ := newTestMaintainer(t, cfg, &fakeSource{}, fakeExtractor{})
	m.SetArchive(func() (storage.Archive, error) { return storage.NewBadgerArchive(t.TempDir(), quietLogger()) })

	_, err := m.Restore(context.Background(), "wikimedia:x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	dir := t.TempDir()
	m.SetArchive(func() (storage.Archive, error) { return storage.NewBadgerArchive(dir, quietLogger()) })

	_, err = store.Save(context.Background(), oldEntries("old", 101))
	require.NoError(t, err)
	_, err = m.Compact(context.Background())
	require.NoError(t, err)

	archived, err := m.Archived(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	key := archived[0].Entry.Key

	// The pool is full of higher-ranked entries, so the lowest one stays out.
	report, err := m.Restore(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, report.Restored)

	pool, err := store.Load(context.Background())
	require.NoError(t, err)
	_, err = store.Save(context.Background(), pool.Items[:50])
	require.NoError(t, err)

	report, err = m.Restore(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, RestoreReport{Key: key, Restored: true}, report)

	pool, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, pool.Items, 51)
	assert.Equal(t, int64(1_760_000_000), pool.Items[50].LastSeen)

	archived, err = m.Archived(context.Background())
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestRestoreWithoutArchive(t *testing.T) {
	m, _, _ := newTestMaintainer(t, DefaultConfig, &fakeSource{}, fakeExtractor{})
	_, err := m.Restore(context.Background(), "wikimedia:1")
	assert.ErrorIs(t, err, ErrNoArchive)
	_, err = m.Archived(context.Background())
	assert.ErrorIs(t, err, ErrNoArchive)
}

// oldEntries returns n entries last seen long ago, ranked by index.
func oldEntries(prefix string, n int) []domain.PoolEntry {
	out := make([]domain.PoolEntry, n)
	for i := range out {
		out[i] = domain.PoolEntry{
			Key: fmt.Sprintf("wikimedia:%s%d", prefix, i), Score: float64(i * 10), FirstSeen: 1, LastSeen: 1,
		}
	}
	return out
}

// Command pickcover picks a cover image for an article from the public pool
// and downloads it.
//
// Exit codes:
//
//	0  cover downloaded, attribution printed
//	2  no suitable candidate
//	3  download failed
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"imagepool/internal/config"
	"imagepool/internal/cover"
	"imagepool/internal/domain"
	"imagepool/internal/scraper"
	"imagepool/internal/storage"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitNoCandidate = 2
	exitDownload    = 3
)

type options struct {
	industry string
	title    string
	slug     string
	out      string
	mdPath   string
	newsPath string
	record   bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("pickcover", pflag.ExitOnError)
	config.RegisterFlags(flags)
	var opts options
	flags.StringVar(&opts.industry, "industry", "", "article industry (required)")
	flags.StringVar(&opts.title, "title", "", "article title (required)")
	flags.StringVar(&opts.slug, "slug", "", "article slug (required)")
	flags.StringVar(&opts.out, "out", "", "cover output path (required)")
	flags.StringVar(&opts.mdPath, "md", "", "article markdown file")
	flags.StringVar(&opts.newsPath, "news-json", "", "raw news JSON the article was written from")
	flags.BoolVar(&opts.record, "record", false, "increment used_count of the picked pool entry")
	_ = flags.Parse(os.Args[1:])

	if opts.industry == "" || opts.title == "" || opts.slug == "" || opts.out == "" {
		fmt.Fprintln(os.Stderr, "--industry, --title, --slug and --out are required")
		flags.Usage()
		return exitFailure
	}

	configDir, _ := flags.GetString("config")
	cfg, err := config.LoadConfig(configDir, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return exitFailure
	}
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scr scraper.Scraper = scraper.Nop{}
	if cfg.ScrapeAttribution {
		scr = scraper.NewRodScraper(log)
	}

	fs := afero.NewOsFs()
	p := &picker{
		fs:         fs,
		store:      storage.NewJSONStore(fs, cfg.PoolPath, log),
		seed:       storage.NewSeedStore(fs, cfg.SeedPath),
		downloader: cover.NewDownloader(fs, &http.Client{Timeout: cover.DownloadTimeout}, cfg.UserAgent, log),
		scraper:    scr,
		log:        log,
	}
	res, code := p.run(ctx, opts)
	if code == exitOK {
		raw, _ := json.Marshal(res)
		fmt.Println(string(raw))
	}
	return code
}

// picker runs one pick with injectable dependencies.
type picker struct {
	fs         afero.Fs
	store      storage.PoolRepository
	seed       *storage.SeedStore
	downloader interface {
		Fetch(ctx context.Context, url, out string) error
	}
	scraper scraper.Scraper
	log     logrus.FieldLogger
}

func (p *picker) run(ctx context.Context, opts options) (cover.Result, int) {
	log := p.log.WithFields(logrus.Fields{"industry": opts.industry, "slug": opts.slug})

	pool, err := p.store.Load(ctx)
	if err != nil {
		log.WithError(err).Error("Pool unavailable, using seed pool only")
		pool = domain.Pool{}
	}
	seed, err := p.seed.Entries()
	if err != nil {
		log.WithError(err).Error("Seed pool unavailable")
	}

	md := ""
	if opts.mdPath != "" {
		raw, err := afero.ReadFile(p.fs, opts.mdPath)
		if err != nil {
			log.WithError(err).Warn("Article markdown unreadable")
		}
		md = string(raw)
	}
	news, err := cover.LoadNews(p.fs, opts.newsPath)
	if err != nil {
		log.WithError(err).Warn("News JSON unreadable")
	}
	text := cover.BuildContext(opts.title, md, news)

	picked, err := cover.NewPicker().Pick(cover.Candidates(pool.Items, seed), opts.industry, text)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info("No cover candidate")
			return cover.Result{}, exitNoCandidate
		}
		log.WithError(err).Error("Cover pick failed")
		return cover.Result{}, exitFailure
	}
	log = log.WithField("key", picked.Key)

	if err := p.downloader.Fetch(ctx, picked.ImageURL, opts.out); err != nil {
		log.WithError(err).Error("Cover download failed")
		return cover.Result{}, exitDownload
	}

	meta := cover.Sidecar{Picked: picked, Slug: opts.slug}
	if picked.URL != "" {
		attr, err := p.scraper.ScrapeAttribution(ctx, picked.URL)
		if err != nil {
			log.WithError(err).Warn("Attribution scrape failed")
		} else if !attr.Empty() {
			meta.Attribution = &attr
		}
	}
	if _, err := cover.WriteSidecar(p.fs, opts.out, meta); err != nil {
		log.WithError(err).Error("Failed to write cover sidecar")
	}

	if opts.record {
		p.recordUse(ctx, log, pool, picked.Key)
	}
	return cover.NewResult(opts.slug, opts.out, picked), exitOK
}

// recordUse persists the pick. Entries that only exist in the seed pool are
// not tracked.
func (p *picker) recordUse(ctx context.Context, log logrus.FieldLogger, pool domain.Pool, key string) {
	items, err := storage.RecordUse(pool.Items, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info("Picked entry is not in the pool, use not recorded")
			return
		}
		log.WithError(err).Error("Failed to record use")
		return
	}
	if _, err := p.store.Save(ctx, items); err != nil {
		log.WithError(err).Error("Failed to save pool after recording use")
		return
	}
	log.Info("Cover use recorded")
}

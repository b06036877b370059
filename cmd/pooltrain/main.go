// Command pooltrain runs pool training passes: one for a published article,
// or with --recent one per post changed within the training window.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"imagepool/internal/app"
	"imagepool/internal/config"
	"imagepool/internal/notify"
	"imagepool/internal/posts"
)

func main() {
	flags := pflag.NewFlagSet("pooltrain", pflag.ExitOnError)
	config.RegisterFlags(flags)
	industry := flags.String("industry", "", "article industry (defaults to the first front matter category)")
	title := flags.String("title", "", "article title (defaults to the front matter title)")
	mdPath := flags.String("md", "", "article markdown file")
	newsPath := flags.String("news-json", "", "raw news JSON the article was written from")
	recent := flags.Bool("recent", false, "train on every post changed within the training window")
	hours := flags.Int("hours", 0, "training window in hours for --recent (default TRAIN_WINDOW)")
	limit := flags.Int("limit", 0, "maximum posts for --recent (default TRAIN_LIMIT)")
	_ = flags.Parse(os.Args[1:])

	configDir, _ := flags.GetString("config")
	cfg, err := config.LoadConfig(configDir, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := app.Maintainer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize maintainer")
	}
	notifier := app.Notifier(cfg, log)
	fs := afero.NewOsFs()

	var out any
	if *recent {
		opts := trainOptions(cfg, *hours, *limit)
		summary, err := posts.NewTrainer(fs, m.Train, log).Run(ctx, opts)
		if err != nil {
			log.WithError(err).Fatal("Daily training failed")
		}
		if summary.Failed > 0 {
			report(ctx, log, notifier, "pooltrain: %d of %d recent posts failed", summary.Failed, summary.Count)
		}
		out = summary
	} else {
		article, err := posts.LoadArticle(fs, log, *mdPath, *newsPath, *title, *industry)
		if err != nil {
			log.WithError(err).Fatal("Failed to read article")
		}
		r, err := m.Train(ctx, article)
		if err != nil {
			report(ctx, log, notifier, "pooltrain failed for %q: %v", article.Title, err)
			log.WithError(err).Fatal("Pool training failed")
		}
		out = r
	}

	raw, _ := json.Marshal(out)
	fmt.Println(string(raw))
}

// trainOptions applies the --hours and --limit overrides to the configured
// training window.
func trainOptions(cfg config.Config, hours, limit int) posts.Options {
	opts := posts.Options{
		Dir:     cfg.PostsDir,
		NewsDir: cfg.NewsDir,
		Window:  cfg.TrainWindow,
		Limit:   cfg.TrainLimit,
	}
	if hours > 0 {
		opts.Window = time.Duration(hours) * time.Hour
	}
	if limit > 0 {
		opts.Limit = limit
	}
	return opts
}

func report(ctx context.Context, log logrus.FieldLogger, n notify.Notifier, format string, args ...any) {
	if err := n.Notify(ctx, fmt.Sprintf(format, args...)); err != nil {
		log.WithError(err).Warn("Failed to notify operator")
	}
}

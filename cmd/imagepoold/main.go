// Command imagepoold runs the daily maintenance of the image pool on cron
// schedules: training on recent posts, thumbnail cache pruning and pool
// compaction, with failures reported to Telegram.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"imagepool/internal/app"
	"imagepool/internal/config"
	"imagepool/internal/diskcache"
	"imagepool/internal/notify"
	"imagepool/internal/posts"
	"imagepool/internal/scheduler"
	"imagepool/internal/storage"
)

func main() {
	// --- Configuration Loading ---
	flags := pflag.NewFlagSet("imagepoold", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	configDir, _ := flags.GetString("config")
	cfg, err := config.LoadConfig(configDir, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := config.NewLogger(cfg)
	log.WithFields(logrus.Fields{
		"pool_path": cfg.PoolPath,
		"cache_dir": cfg.CacheDir,
		"cache_cap": humanize.IBytes(uint64(cfg.CacheCapBytes)),
	}).Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	m, err := app.Maintainer(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize maintainer: %v", err)
	}

	notifier := app.Notifier(cfg, log)
	if tg, ok := notifier.(*notify.Telegram); ok {
		store := storage.NewJSONStore(afero.NewOsFs(), cfg.PoolPath, log)
		tg.SetStatus(func(ctx context.Context) (string, error) {
			return app.Status(ctx, store, cfg.PoolCap)
		})
		go tg.Start(ctx)
	}

	sched, err := scheduler.New(ctx, cfg.Timezone, log)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	fs := afero.NewOsFs()
	trainer := posts.NewTrainer(fs, m.Train, log)
	train := func(ctx context.Context) error {
		summary, err := trainer.Run(ctx, posts.Options{
			Dir:     cfg.PostsDir,
			NewsDir: cfg.NewsDir,
			Window:  cfg.TrainWindow,
			Limit:   cfg.TrainLimit,
		})
		if err != nil {
			report(ctx, log, notifier, "daily training failed: %v", err)
			return err
		}
		if summary.Failed > 0 {
			report(ctx, log, notifier, "daily training: %d of %d posts failed", summary.Failed, summary.Count)
		}
		return nil
	}
	prune := func(ctx context.Context) error {
		r, err := diskcache.Prune(fs, cfg.CacheDir, cfg.CacheCapBytes)
		if err != nil {
			report(ctx, log, notifier, "cache prune failed: %v", err)
			return err
		}
		log.WithFields(logrus.Fields{
			"before":  humanize.IBytes(uint64(r.Before)),
			"after":   humanize.IBytes(uint64(r.After)),
			"deleted": r.DeletedFiles,
		}).Info("Cache pruned")
		return nil
	}
	compact := func(ctx context.Context) error {
		r, err := m.Compact(ctx)
		if err != nil {
			report(ctx, log, notifier, "pool compaction failed: %v", err)
			return err
		}
		if r.Before != r.After {
			report(ctx, log, notifier, "pool compacted from %d to %d entries", r.Before, r.After)
		}
		return nil
	}

	if err := sched.Schedule("cache_prune", cfg.PruneSchedule, prune); err != nil {
		log.Fatalf("Failed to schedule cache prune: %v", err)
	}
	if cfg.TrainSchedule != "" {
		if err := sched.Schedule("daily_train", cfg.TrainSchedule, train); err != nil {
			log.Fatalf("Failed to schedule daily training: %v", err)
		}
	}
	if cfg.CompactSchedule != "" {
		if err := sched.Schedule("pool_compact", cfg.CompactSchedule, compact); err != nil {
			log.Fatalf("Failed to schedule pool compaction: %v", err)
		}
	}

	// --- Application Startup ---
	sched.Start()
	log.WithField("next_prune", sched.Next("cache_prune")).Info("imagepoold is running. Press Ctrl+C to exit.")

	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down imagepoold...")
	stop()
	sched.Stop()
	log.Info("imagepoold shut down gracefully.")
}

func report(ctx context.Context, log logrus.FieldLogger, n notify.Notifier, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err := n.Notify(ctx, msg); err != nil {
		log.WithError(err).Warn("Failed to notify operator")
	}
}

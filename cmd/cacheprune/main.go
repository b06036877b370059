// Command cacheprune bounds the thumbnail cache by size and, with --compact,
// re-applies the entry cap to the pool.
package main

import (
	"context"
	"encoding/json"
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
)

type output struct {
	diskcache.PruneReport
	PoolBefore *int `json:"pool_before,omitempty"`
	PoolAfter  *int `json:"pool_after,omitempty"`
}

func main() {
	flags := pflag.NewFlagSet("cacheprune", pflag.ExitOnError)
	config.RegisterFlags(flags)
	compact := flags.Bool("compact", false, "also compact the pool document to its cap")
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

	report, err := diskcache.Prune(afero.NewOsFs(), cfg.CacheDir, cfg.CacheCapBytes)
	if err != nil {
		log.WithError(err).Fatal("Cache prune failed")
	}
	log.WithFields(logrus.Fields{
		"dir":     report.Dir,
		"cap":     humanize.IBytes(uint64(report.CapBytes)),
		"before":  humanize.IBytes(uint64(report.Before)),
		"after":   humanize.IBytes(uint64(report.After)),
		"deleted": report.DeletedFiles,
	}).Info("Cache pruned")

	out := output{PruneReport: report}
	if *compact {
		m, err := app.Maintainer(cfg, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize maintainer")
		}
		cr, err := m.Compact(ctx)
		if err != nil {
			log.WithError(err).Fatal("Pool compaction failed")
		}
		out.PoolBefore, out.PoolAfter = &cr.Before, &cr.After
	}

	raw, _ := json.Marshal(out)
	fmt.Println(string(raw))
}

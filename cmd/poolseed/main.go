// Command poolseed rebuilds the industry-tagged seed pool from a public
// image source.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"imagepool/internal/app"
	"imagepool/internal/config"
	"imagepool/internal/domain"
	"imagepool/internal/seeder"
	"imagepool/internal/storage"
)

func main() {
	flags := pflag.NewFlagSet("poolseed", pflag.ExitOnError)
	config.RegisterFlags(flags)
	perIndustry := flags.Int("per-industry", 30, "target items per industry (5-60)")
	pageSize := flags.Int("page-size", 50, "results requested per query")
	provider := flags.String("provider", domain.ProviderWikimedia, "source to search: wikimedia_commons or openverse")
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

	cfg.Providers = []string{*provider}
	srcs, err := app.Sources(cfg, &http.Client{Timeout: cfg.FetchTimeout})
	if err != nil {
		log.WithError(err).Fatal("Invalid provider")
	}

	doc, err := seeder.NewBuilder(srcs[0], *pageSize, log).Build(ctx, *perIndustry)
	if err != nil {
		log.WithError(err).Fatal("Seed build failed")
	}

	if err := storage.NewSeedStore(afero.NewOsFs(), cfg.SeedPath).Save(doc); err != nil {
		log.WithError(err).Fatal("Failed to write seed pool")
	}
	log.WithFields(logrus.Fields{"items": len(doc.Pool), "path": cfg.SeedPath}).Info("Seed pool generated")
}

// Package app wires configured components for the commands.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"imagepool/internal/config"
	"imagepool/internal/diskcache"
	"imagepool/internal/domain"
	"imagepool/internal/extract"
	"imagepool/internal/maintainer"
	"imagepool/internal/notify"
	"imagepool/internal/source"
	"imagepool/internal/storage"
)

// Sources builds the configured candidate sources in order.
func Sources(cfg config.Config, client *http.Client) ([]source.Source, error) {
	var out []source.Source
	for _, p := range cfg.Providers {
		switch p {
		case domain.ProviderWikimedia:
			c := source.NewCommonsClient(client)
			c.SetUserAgent(cfg.UserAgent)
			out = append(out, c)
		case domain.ProviderOpenverse:
			c := source.NewOpenverseClient(client)
			c.SetUserAgent(cfg.UserAgent)
			out = append(out, c)
		default:
			return nil, fmt.Errorf("unknown provider %q", p)
		}
	}
	return out, nil
}

// Archive opens the eviction archive, or returns nil when none is configured.
func Archive(cfg config.Config, log logrus.FieldLogger) (storage.Archive, error) {
	if cfg.ArchivePath == "" {
		return nil, nil
	}
	a, err := storage.NewBadgerArchive(cfg.ArchivePath, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Notifier returns a Telegram notifier when a token and chat are configured.
func Notifier(cfg config.Config, log logrus.FieldLogger) notify.Notifier {
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == 0 {
		return notify.Nop{}
	}
	n, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
	if err != nil {
		log.WithError(err).Warn("Notifications disabled")
		return notify.Nop{}
	}
	return n
}

// Maintainer assembles a Maintainer over the OS filesystem. The eviction
// archive, when configured, is opened only while a run writes to it, so the
// daemon and one-shot commands can share ARCHIVE_PATH.
func Maintainer(cfg config.Config, log logrus.FieldLogger) (*maintainer.Maintainer, error) {
	fs := afero.NewOsFs()
	client := &http.Client{Timeout: cfg.FetchTimeout}

	srcs, err := Sources(cfg, client)
	if err != nil {
		return nil, err
	}

	m := maintainer.New(maintainer.Config{
		Cap:            cfg.PoolCap,
		MaxQueries:     cfg.MaxQueries,
		PageSize:       cfg.PageSize,
		FetchTimeout:   cfg.FetchTimeout,
		Concurrency:    cfg.Concurrency,
		CacheMaxPerRun: cfg.CacheMaxPerRun,
	}, storage.NewJSONStore(fs, cfg.PoolPath, log), extract.NewHeuristic(), srcs, log)

	if cfg.CacheDir != "" && cfg.CacheMaxPerRun > 0 {
		m.SetThumbCache(diskcache.NewThumbCache(fs, cfg.CacheDir, client, cfg.UserAgent, log))
	}
	if cfg.ArchivePath != "" {
		m.SetArchive(func() (storage.Archive, error) { return Archive(cfg, log) })
	}
	return m, nil
}

// Status renders a one-line summary of the persisted pool.
func Status(ctx context.Context, repo storage.PoolRepository, capacity int) (string, error) {
	pool, err := repo.Load(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pool: %d/%d entries, updated %s", len(pool.Items), capacity, pool.UpdatedAt), nil
}

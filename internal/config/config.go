package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imagepool/internal/domain"
)

// Config holds all configuration for the tools and the daemon.
// Values are read by viper from a config file, environment variables and
// command-line flags, in increasing priority.
type Config struct {
	PoolPath       string        `mapstructure:"POOL_PATH"`
	PoolCap        int           `mapstructure:"POOL_CAP"`
	SeedPath       string        `mapstructure:"SEED_PATH"`
	ArchivePath    string        `mapstructure:"ARCHIVE_PATH"`
	CacheDir       string        `mapstructure:"CACHE_DIR"`
	CacheCap       string        `mapstructure:"CACHE_CAP"`
	CacheMaxPerRun int           `mapstructure:"CACHE_MAX_PER_RUN"`
	PageSize       int           `mapstructure:"PAGE_SIZE"`
	MaxQueries     int           `mapstructure:"MAX_QUERIES"`
	FetchTimeout   time.Duration `mapstructure:"FETCH_TIMEOUT"`
	Concurrency    int           `mapstructure:"FETCH_CONCURRENCY"`
	Providers      []string      `mapstructure:"PROVIDERS"`
	UserAgent      string        `mapstructure:"USER_AGENT"`

	ScrapeAttribution bool `mapstructure:"SCRAPE_ATTRIBUTION"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `mapstructure:"TELEGRAM_CHAT_ID"`

	PostsDir    string        `mapstructure:"POSTS_DIR"`
	NewsDir     string        `mapstructure:"NEWS_DIR"`
	TrainWindow time.Duration `mapstructure:"TRAIN_WINDOW"`
	TrainLimit  int           `mapstructure:"TRAIN_LIMIT"`

	PruneSchedule   string `mapstructure:"PRUNE_SCHEDULE"`
	CompactSchedule string `mapstructure:"COMPACT_SCHEDULE"`
	TrainSchedule   string `mapstructure:"TRAIN_SCHEDULE"`
	Timezone        string `mapstructure:"TIMEZONE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// CacheCapBytes is CacheCap parsed.
	CacheCapBytes int64 `mapstructure:"-"`
}

var defaults = map[string]any{
	"POOL_PATH":          "data/public_image_pool.json",
	"POOL_CAP":           2000,
	"SEED_PATH":          "scripts/public_image_pool.yaml",
	"ARCHIVE_PATH":       "",
	"CACHE_DIR":          "data/local_image_cache",
	"CACHE_CAP":          "5GiB",
	"CACHE_MAX_PER_RUN":  30,
	"PAGE_SIZE":          20,
	"MAX_QUERIES":        10,
	"FETCH_TIMEOUT":      "25s",
	"FETCH_CONCURRENCY":  4,
	"PROVIDERS":          []string{domain.ProviderWikimedia},
	"USER_AGENT":         "imagepool/1.0 (+https://commons.wikimedia.org/wiki/Commons:API)",
	"SCRAPE_ATTRIBUTION": false,
	"TELEGRAM_BOT_TOKEN": "",
	"TELEGRAM_CHAT_ID":   0,
	"POSTS_DIR":          "content/posts",
	"NEWS_DIR":           "data/raw",
	"TRAIN_WINDOW":       "24h",
	"TRAIN_LIMIT":        6,
	"PRUNE_SCHEDULE":     "0 4 * * *",
	"COMPACT_SCHEDULE":   "30 4 * * *",
	"TRAIN_SCHEDULE":     "0 3 * * *",
	"TIMEZONE":           "UTC",
	"LOG_LEVEL":          "info",
	"LOG_FORMAT":         "json",
}

// flagKeys maps the shared command-line flags to their config keys.
var flagKeys = map[string]string{
	"pool":      "POOL_PATH",
	"cap":       "POOL_CAP",
	"seed":      "SEED_PATH",
	"archive":   "ARCHIVE_PATH",
	"cache-dir": "CACHE_DIR",
	"cache-cap": "CACHE_CAP",
	"log-level": "LOG_LEVEL",
}

// RegisterFlags adds the flags shared by every command to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "./configs", "directory holding config.yaml")
	fs.String("pool", "", "pool JSON document")
	fs.Int("cap", 0, "maximum pool entries")
	fs.String("seed", "", "seed pool YAML")
	fs.String("archive", "", "badger directory for evicted entries (empty disables)")
	fs.String("cache-dir", "", "thumbnail cache directory")
	fs.String("cache-cap", "", "thumbnail cache size cap, e.g. 5GiB")
	fs.String("log-level", "", "log level")
}

// LoadConfig reads configuration from path/config.yaml, the environment and
// the flags of fs that were set. fs may be nil.
func LoadConfig(path string, fs *pflag.FlagSet) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.PoolPath == "" {
		return errors.New("POOL_PATH is not set")
	}
	if c.PoolCap <= 0 {
		return fmt.Errorf("POOL_CAP must be positive, got %d", c.PoolCap)
	}
	n, err := humanize.ParseBytes(c.CacheCap)
	if err != nil {
		return fmt.Errorf("invalid CACHE_CAP %q: %w", c.CacheCap, err)
	}
	c.CacheCapBytes = int64(n)
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	for _, p := range c.Providers {
		if p != domain.ProviderWikimedia && p != domain.ProviderOpenverse {
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	if len(c.Providers) == 0 {
		return errors.New("PROVIDERS is empty")
	}
	if c.TrainWindow <= 0 {
		return fmt.Errorf("TRAIN_WINDOW must be positive, got %s", c.TrainWindow)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds the process logger: JSON (or text) to stdout at the
// configured level.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

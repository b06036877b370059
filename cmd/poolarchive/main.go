// Command poolarchive inspects the eviction archive and restores archived
// entries into the pool.
//
// Usage:
//
//	poolarchive list
//	poolarchive restore <key>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"imagepool/internal/app"
	"imagepool/internal/config"
	"imagepool/internal/domain"
	"imagepool/internal/maintainer"
)

func main() {
	flags := pflag.NewFlagSet("poolarchive", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 || (args[0] == "restore" && len(args) != 2) {
		fmt.Fprintln(os.Stderr, "usage: poolarchive list | poolarchive restore <key>")
		os.Exit(1)
	}

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

	out, err := run(ctx, m, args)
	if err != nil {
		log.WithError(err).Fatal("Archive command failed")
	}
	raw, _ := json.Marshal(out)
	fmt.Println(string(raw))
}

func run(ctx context.Context, m *maintainer.Maintainer, args []string) (any, error) {
	switch args[0] {
	case "list":
		return m.Archived(ctx)
	case "restore":
		if !domain.ValidKey(args[1]) {
			return nil, fmt.Errorf("invalid pool key %q", args[1])
		}
		return m.Restore(ctx, args[1])
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
}

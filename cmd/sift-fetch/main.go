// sift-fetch pulls messages from the mailbox and records each observed
// state as a new version in the temporal store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sortedmail/sift/internal/config"
	"github.com/sortedmail/sift/internal/fetch"
	"github.com/sortedmail/sift/internal/rate"
	"github.com/sortedmail/sift/internal/runtime"
	"github.com/sortedmail/sift/internal/store"
)

type fetchConfig struct {
	configFile string
	maxResults int
	query      string
}

func main() {
	cfg := parseFetchFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("sift-fetch failed", "error", err)
		os.Exit(1)
	}
}

func parseFetchFlags() fetchConfig {
	configFile := flag.String("config", "", "path to sift config file (TOML)")
	maxResults := flag.Int("max-results", 0, "max messages to fetch (overrides config)")
	query := flag.String("query", "", "Gmail search query (overrides config)")
	flag.Parse()

	return fetchConfig{
		configFile: *configFile,
		maxResults: *maxResults,
		query:      *query,
	}
}

func run(flags fetchConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.maxResults > 0 {
		cfg.Fetch.MaxResults = flags.maxResults
	}
	if flags.query != "" {
		cfg.Fetch.Query = flags.query
	}

	logger := runtime.DefaultLogger()

	st, err := store.Open(ctx, cfg.Database.URI())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client, err := runtime.NewGmailClient(ctx, cfg.Gmail.CredentialsDir)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var limiter rate.Limiter
	if cfg.Gmail.RequestsPerSecond > 0 {
		bucket := rate.NewTokenBucket(cfg.Gmail.RequestsPerSecond, 0)
		defer bucket.Stop()
		limiter = bucket
	}

	svc := fetch.NewService(client, st, limiter, logger)
	sum, err := svc.Run(ctx, fetch.Options{
		Query:      cfg.Fetch.Query,
		MaxResults: cfg.Fetch.MaxResults,
		PageSize:   cfg.Fetch.PageSize,
	})
	if err != nil {
		return fmt.Errorf("run fetch: %w", err)
	}

	total, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("count emails: %w", err)
	}
	fmt.Printf("fetched %d message(s), %d new version(s), %d email(s) in store\n",
		sum.Fetched, sum.NewVersions, total)
	return nil
}

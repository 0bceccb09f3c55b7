// sift-apply loads a rules file, evaluates it against the current email
// snapshots in the store and applies the matching rules' actions. Validation
// is fail-closed: any error in the rules file blocks the whole run before a
// single mutation happens.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sortedmail/sift/internal/apply"
	"github.com/sortedmail/sift/internal/config"
	"github.com/sortedmail/sift/internal/rate"
	"github.com/sortedmail/sift/internal/rules"
	"github.com/sortedmail/sift/internal/runtime"
	"github.com/sortedmail/sift/internal/store"
)

type applyConfig struct {
	configFile string
	rulesFile  string
	dryRun     bool
}

func main() {
	cfg := parseApplyFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("sift-apply failed", "error", err)
		os.Exit(1)
	}
}

func parseApplyFlags() applyConfig {
	configFile := flag.String("config", "", "path to sift config file (TOML)")
	rulesFile := flag.String("rules", "", "path to the rules file (overrides config)")
	dryRun := flag.Bool("dry-run", false, "log planned changes; skip modifications")
	flag.Parse()

	return applyConfig{
		configFile: *configFile,
		rulesFile:  *rulesFile,
		dryRun:     *dryRun,
	}
}

func run(flags applyConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.rulesFile != "" {
		cfg.Rules.File = flags.rulesFile
	}

	logger := runtime.DefaultLogger()

	// Rules are validated before anything is touched; a bad document stops
	// the run here with the full error list.
	engine, err := rules.Load(cfg.Rules.File, logger)
	if err != nil {
		return err
	}
	logger.Info("rules loaded", "file", cfg.Rules.File, "count", len(engine.Rules()))

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	st, err := store.Open(ctx, cfg.Database.URI())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	emails, err := st.CurrentEmails(ctx)
	if err != nil {
		return fmt.Errorf("load current emails: %w", err)
	}
	if len(emails) == 0 {
		logger.Info("no emails in store; run sift-fetch first")
		return nil
	}

	matches := engine.Run(emails)
	if len(matches) == 0 {
		logger.Info("no rules matched", "emails", len(emails))
		return nil
	}

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

	svc := apply.NewService(client, st, limiter, logger)
	svc.DryRun = flags.dryRun

	rep, err := svc.Apply(ctx, matches)
	if err != nil {
		return fmt.Errorf("apply actions: %w", err)
	}

	fmt.Printf("run %s: %d email(s) evaluated, %d matched, %d action(s) applied, %d version(s) written\n",
		rep.RunID, len(emails), rep.EmailsMatched, rep.ActionsApplied, rep.VersionsWritten)
	for _, f := range rep.Failures {
		fmt.Fprintf(os.Stderr, "failed: email %s (rules %v): %v\n", f.EmailID, f.Rules, f.Err)
	}
	if len(rep.Failures) > 0 {
		return fmt.Errorf("%d email(s) failed", len(rep.Failures))
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}

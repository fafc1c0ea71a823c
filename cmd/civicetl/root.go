package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"civicetl/internal/cache"
	"civicetl/internal/config"
	"civicetl/internal/fetch"
	"civicetl/internal/jobs"
	"civicetl/internal/metrics"
	"civicetl/internal/metrics/datadog"
	"civicetl/internal/metrics/prompush"
	"civicetl/internal/store"
	"civicetl/internal/store/postgres"
	"civicetl/internal/store/sqlite"
)

type rootFlags struct {
	configPath     string
	metricsBackend string
	gatewayURL     string
	statsdAddr     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "civicetl",
		Short:         "Poll, validate, and analyze civic open-data snapshots",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "configs/profiles.yaml", "dataset profile YAML path")
	root.PersistentFlags().StringVar(&flags.metricsBackend, "metrics-backend", "", "metrics backend (pushgateway, datadog, none); overrides config")
	root.PersistentFlags().StringVar(&flags.gatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	root.PersistentFlags().StringVar(&flags.statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env STATSD_ADDR)")

	root.AddCommand(newPollCmd(flags))
	root.AddCommand(newAnalyzeCmd(flags))
	root.AddCommand(newLintCmd(flags))

	return root
}

func newPollCmd(flags *rootFlags) *cobra.Command {
	var (
		moniker  string
		asOfStr  string
		backfill int
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch, validate, and cache a dataset snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, d, err := loadDataset(flags, moniker)
			if err != nil {
				return err
			}
			setupMetrics(flags, cfg.Metrics, jobs.NamePollNYC311)

			deps, cleanup, err := buildDeps(cmd.Context(), d)
			if err != nil {
				return err
			}
			defer cleanup()

			if asOfStr != "" {
				deps.AsOf, err = time.Parse("2006-01-02", asOfStr)
				if err != nil {
					return fmt.Errorf("parse --as-of: %w", err)
				}
			}
			if backfill > 0 {
				deps.Dates = backfillDates(deps.AsOf, backfill)
			}

			return jobs.Run(cmd.Context(), jobs.NamePollNYC311, deps)
		},
	}

	cmd.Flags().StringVar(&moniker, "dataset", "", "dataset moniker from the profile file")
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "logical date YYYY-MM-DD (default: yesterday)")
	cmd.Flags().IntVar(&backfill, "backfill", 0, "also poll the N days before the as-of date that are missing from the cache")

	return cmd
}

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	var (
		moniker   string
		asOfStr   string
		reportDir string
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build CSV reports from a cached snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, d, err := loadDataset(flags, moniker)
			if err != nil {
				return err
			}
			setupMetrics(flags, cfg.Metrics, jobs.NameAnalyzeNYC311)

			deps, cleanup, err := buildDeps(cmd.Context(), d)
			if err != nil {
				return err
			}
			defer cleanup()

			if asOfStr != "" {
				deps.AsOf, err = time.Parse("2006-01-02", asOfStr)
				if err != nil {
					return fmt.Errorf("parse --as-of: %w", err)
				}
			}
			deps.ReportDir = reportDir
			deps.TopN = topN

			return jobs.Run(cmd.Context(), jobs.NameAnalyzeNYC311, deps)
		},
	}

	cmd.Flags().StringVar(&moniker, "dataset", "", "dataset moniker from the profile file")
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "logical date YYYY-MM-DD (default: yesterday)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "reports", "directory for CSV reports")
	cmd.Flags().IntVar(&topN, "top", 0, "rows in the best/worst tables (default 5)")

	return cmd
}

func newLintCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate the profile file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			hasError := false
			for _, iss := range config.ValidateConfig(cfg) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
				if iss.Severity == config.SeverityError {
					hasError = true
				}
			}
			if hasError {
				return fmt.Errorf("configuration is invalid: %s", flags.configPath)
			}
			log.Printf("configuration is valid: %s", flags.configPath)
			return nil
		},
	}
}

// loadDataset loads the profile file, lints it, and selects one dataset.
// Lint errors block execution; warnings are surfaced only by the lint command.
func loadDataset(flags *rootFlags, moniker string) (config.Config, config.Dataset, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, config.Dataset{}, err
	}
	for _, iss := range config.ValidateConfig(cfg) {
		if iss.Severity == config.SeverityError {
			return config.Config{}, config.Dataset{}, fmt.Errorf("configuration is invalid: %w", iss)
		}
	}
	if moniker == "" {
		if len(cfg.Datasets) != 1 {
			return config.Config{}, config.Dataset{}, fmt.Errorf("--dataset is required when the profile configures %d datasets", len(cfg.Datasets))
		}
		return cfg, cfg.Datasets[0], nil
	}
	d, err := cfg.Dataset(moniker)
	if err != nil {
		return config.Config{}, config.Dataset{}, err
	}
	return cfg, d, nil
}

// buildDeps assembles job dependencies from the dataset profile. The returned
// cleanup closes any store connection.
func buildDeps(ctx context.Context, d config.Dataset) (jobs.Deps, func(), error) {
	cleanup := func() {}

	client := fetch.NewClient(fetch.ClientConfig{
		Timeout:    time.Duration(d.Fetch.TimeoutSeconds) * time.Second,
		MaxRetries: d.Fetch.Retries,
	})
	fetcher, err := fetch.FromName(d.Fetcher, fetch.Settings{
		BaseURL:  d.Fetch.BaseURL,
		Dataset:  d.Fetch.Dataset,
		AppToken: d.Fetch.AppToken,
		PageSize: d.Fetch.PageSize,
		Client:   client,
	})
	if err != nil {
		return jobs.Deps{}, cleanup, err
	}

	deps := jobs.Deps{
		Dataset: d,
		Fetcher: fetcher,
		Cache:   cache.New(d.Cache.Dir),
	}

	if d.Store.Enabled() {
		var (
			repo    store.Repository
			closeFn func()
		)
		switch d.Store.Kind {
		case "postgres":
			repo, closeFn, err = postgres.NewRepository(ctx, d.Store.DSN)
		case "sqlite":
			repo, closeFn, err = sqlite.NewRepository(ctx, d.Store.DSN)
		default:
			err = fmt.Errorf("unknown store kind %q", d.Store.Kind)
		}
		if err != nil {
			return jobs.Deps{}, cleanup, err
		}
		deps.Repo = repo
		cleanup = closeFn
	}

	return deps, cleanup, nil
}

// setupMetrics decides the metrics backend: flag → env → config → none.
func setupMetrics(flags *rootFlags, m config.Metrics, jobName string) {
	backendName := flags.metricsBackend
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "" {
		backendName = m.Backend
	}

	switch backendName {
	case "pushgateway":
		gwURL := flags.gatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = m.GatewayURL
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%s url=%s job=%s", backendName, gwURL, jobName)
		metrics.SetBackend(b)

	case "datadog":
		addr := flags.statsdAddr
		if addr == "" {
			addr = os.Getenv("STATSD_ADDR")
		}
		if addr == "" {
			addr = m.StatsdAddr
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}

		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "civicetl.",
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%s addr=%s job=%s", backendName, addr, jobName)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// backfillDates lists the n days before the as-of date, oldest first. A zero
// as-of anchors on yesterday.
func backfillDates(asOf time.Time, n int) []time.Time {
	if asOf.IsZero() {
		asOf = time.Now().AddDate(0, 0, -1)
	}
	dates := make([]time.Time, 0, n+1)
	for i := n; i >= 0; i-- {
		dates = append(dates, asOf.AddDate(0, 0, -i))
	}
	return dates
}

// signalContext is used by Execute via cobra's command context.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

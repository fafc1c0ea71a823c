// Package config defines the canonical, YAML-serializable configuration model
// for the application. It is intentionally small and explicit so that dataset
// profiles can be loaded from disk and passed through the program without
// additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the YAML structure used in profile
//     files under configs/*.yaml.
//
// Example (trimmed):
//
//	metrics:
//	  backend: pushgateway
//	  gateway_url: http://pushgateway:9091
//	datasets:
//	  - moniker: nyc_311
//	    ruleset: ValidatorNYCOpen311Service
//	    fetcher: FetcherNYCOpenData
//	    fetch: { base_url: data.cityofnewyork.us, dataset: erm2-nwe9 }
//	    cache: { dir: CACHE }
//	    store: { kind: sqlite, dsn: snapshots.db, table: nyc_311 }
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCacheDir is used when a dataset profile leaves cache.dir empty.
const DefaultCacheDir = "CACHE"

// Config is the top-level object decoded from a profile file.
type Config struct {
	// Metrics selects the optional metrics backend shared by all jobs.
	Metrics Metrics `yaml:"metrics"`

	// Datasets lists the dataset profiles this deployment polls and analyzes.
	Datasets []Dataset `yaml:"datasets"`
}

// Metrics selects and configures the metrics backend.
type Metrics struct {
	// Backend selects the implementation: "pushgateway", "datadog", or "none".
	// Empty means "none".
	Backend string `yaml:"backend"`

	// GatewayURL is the Pushgateway base URL for the "pushgateway" backend.
	GatewayURL string `yaml:"gateway_url"`

	// StatsdAddr is the DogStatsD address for the "datadog" backend.
	StatsdAddr string `yaml:"statsd_addr"`
}

// Dataset describes one upstream dataset: where to fetch it, which rule
// battery validates it, and where snapshots land.
type Dataset struct {
	// Moniker is the short name used in cache paths, job names, and logs.
	Moniker string `yaml:"moniker"`

	// Ruleset names the validator that owns this dataset's rule battery,
	// e.g. "ValidatorNYCOpen311Service". Empty selects the generic
	// pass-through validator.
	Ruleset string `yaml:"ruleset"`

	// Fetcher names the fetcher implementation, e.g. "FetcherNYCOpenData".
	Fetcher string `yaml:"fetcher"`

	// IdentifierColumn names the column expected to be unique per row.
	IdentifierColumn string `yaml:"identifier_column"`

	// TextColumns and DatetimeColumns document the dataset shape for
	// analytics and reporting; the validator carries its own column lists.
	TextColumns     []string `yaml:"text_columns"`
	DatetimeColumns []string `yaml:"datetime_columns"`

	Fetch Fetch `yaml:"fetch"`
	Cache Cache `yaml:"cache"`
	Store Store `yaml:"store"`

	// Workers bounds the poll job's fan-out over missing dates. Zero means
	// the job's default.
	Workers int `yaml:"workers"`
}

// Fetch carries the upstream API settings for a dataset.
type Fetch struct {
	// BaseURL is the API host, e.g. "data.cityofnewyork.us".
	BaseURL string `yaml:"base_url"`

	// Dataset is the upstream dataset identifier, e.g. "erm2-nwe9".
	Dataset string `yaml:"dataset"`

	// AppToken is the optional API token sent as X-App-Token.
	AppToken string `yaml:"app_token"`

	// PageSize overrides the default $limit page size when positive.
	PageSize int `yaml:"page_size"`

	// TimeoutSeconds bounds each HTTP request. Zero means the client default.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Retries is the number of retry attempts after the first request.
	// Negative values are rejected by the linter; zero means the client
	// default.
	Retries int `yaml:"retries"`
}

// Cache configures the filesystem snapshot cache.
type Cache struct {
	// Dir is the cache base directory. Empty defaults to DefaultCacheDir.
	Dir string `yaml:"dir"`
}

// Store configures the optional durable snapshot store.
type Store struct {
	// Kind selects the backend: "postgres" or "sqlite". Empty disables the
	// durable store; the cache remains the always-on layer.
	Kind string `yaml:"kind"`

	// DSN is the backend connection string (pgx DSN or SQLite path).
	DSN string `yaml:"dsn"`

	// Table is the destination table, optionally schema-qualified.
	Table string `yaml:"table"`

	// AutoCreateTable creates the snapshot table on first write.
	AutoCreateTable bool `yaml:"auto_create_table"`
}

// Enabled reports whether a durable store is configured.
func (s Store) Enabled() bool { return strings.TrimSpace(s.Kind) != "" }

// Load reads and decodes a profile file, then applies defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Datasets {
		d := &c.Datasets[i]
		d.Moniker = strings.TrimSpace(d.Moniker)
		if strings.TrimSpace(d.Cache.Dir) == "" {
			d.Cache.Dir = DefaultCacheDir
		}
	}
}

// Dataset returns the profile with the given moniker.
func (c Config) Dataset(moniker string) (Dataset, error) {
	for _, d := range c.Datasets {
		if d.Moniker == moniker {
			return d, nil
		}
	}
	return Dataset{}, fmt.Errorf("config: dataset %q is not configured", moniker)
}

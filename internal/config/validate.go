// Package config provides configuration models and helpers for dataset
// profiles.
//
// This file adds a lightweight linter/validator for Config values. It performs
// static checks over a decoded Config and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"

	"civicetl/internal/fetch"
	"civicetl/internal/validate"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "datasets[0].fetch.base_url").
// Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidateConfig performs static validation / linting of a Config.
//
// It does not mutate the config. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	c, err := config.Load(path)
//	if err != nil { ... }
//	for _, iss := range config.ValidateConfig(c) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateConfig(c Config) []Issue {
	var issues []Issue

	issues = append(issues, validateMetrics(c.Metrics)...)

	if len(c.Datasets) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "datasets",
			Message:  "no datasets configured; poll and analyze jobs will have nothing to do",
		})
		return issues
	}

	seen := map[string]int{}
	for i, d := range c.Datasets {
		prefix := fmt.Sprintf("datasets[%d]", i)
		if d.Moniker != "" {
			if first, dup := seen[d.Moniker]; dup {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     prefix + ".moniker",
					Message:  fmt.Sprintf("moniker %q already used by datasets[%d]", d.Moniker, first),
				})
			} else {
				seen[d.Moniker] = i
			}
		}
		issues = append(issues, validateDataset(prefix, d)...)
	}

	return issues
}

// validateMetrics validates the metrics backend selection.
func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
		// metrics disabled
	case "pushgateway":
		if strings.TrimSpace(m.GatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.gateway_url",
				Message:  "pushgateway backend requires a non-empty gateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog backend requires a non-empty statsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; expected pushgateway, datadog, or none", m.Backend),
		})
	}

	return issues
}

// validateDataset validates one dataset profile.
func validateDataset(prefix string, d Dataset) []Issue {
	var issues []Issue

	if strings.TrimSpace(d.Moniker) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".moniker",
			Message:  "moniker must not be empty; it keys cache paths and job names",
		})
	}

	// Ruleset must resolve in the validator registry. Empty selects the
	// generic pass-through validator, which is legal but worth surfacing.
	if d.Ruleset == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     prefix + ".ruleset",
			Message:  "no ruleset configured; rows will pass through unvalidated",
		})
	} else if _, err := validate.FromName(d.Ruleset, validate.NopObserver{}); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".ruleset",
			Message:  fmt.Sprintf("unknown ruleset %q; no validator with that moniker is registered", d.Ruleset),
		})
	}

	issues = append(issues, validateFetch(prefix, d)...)
	issues = append(issues, validateStore(prefix+".store", d.Store)...)

	if d.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".workers",
			Message:  "workers must not be negative",
		})
	}

	return issues
}

// validateFetch validates fetcher selection and upstream API settings.
func validateFetch(prefix string, d Dataset) []Issue {
	var issues []Issue

	known := map[string]struct{}{
		fetch.NameNYCOpenData: {},
	}
	if strings.TrimSpace(d.Fetcher) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetcher",
			Message:  "fetcher must not be empty",
		})
	} else if _, ok := known[d.Fetcher]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetcher",
			Message:  fmt.Sprintf("unknown fetcher %q; no fetcher with that moniker is registered", d.Fetcher),
		})
	}

	f := d.Fetch
	if strings.TrimSpace(f.BaseURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetch.base_url",
			Message:  "fetch.base_url must not be empty",
		})
	}
	if strings.TrimSpace(f.Dataset) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetch.dataset",
			Message:  "fetch.dataset must not be empty",
		})
	}
	if f.PageSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetch.page_size",
			Message:  "fetch.page_size must not be negative",
		})
	}
	if f.Retries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetch.retries",
			Message:  "fetch.retries must not be negative",
		})
	}
	if f.TimeoutSeconds < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".fetch.timeout_seconds",
			Message:  "fetch.timeout_seconds must not be negative",
		})
	}
	if f.AppToken == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     prefix + ".fetch.app_token",
			Message:  "no app_token configured; the upstream API throttles anonymous clients aggressively",
		})
	}

	return issues
}

// validateStore validates the optional durable store settings.
func validateStore(path string, s Store) []Issue {
	var issues []Issue

	if !s.Enabled() {
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unknown store kind %q; expected postgres or sqlite", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".dsn",
			Message:  "store.dsn must not be empty when a store kind is set",
		})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".table",
			Message:  "store.table must not be empty when a store kind is set",
		})
	}

	return issues
}

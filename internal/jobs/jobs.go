// Package jobs wires fetching, validation, caching, storage, and analytics
// into named units of work. Jobs are registered by moniker so the CLI and
// schedulers can resolve them by name, mirroring the validator and fetcher
// registries.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"civicetl/internal/cache"
	"civicetl/internal/config"
	"civicetl/internal/fetch"
	"civicetl/internal/metrics"
	"civicetl/internal/store"
	"civicetl/internal/validate"
)

// Deps carries everything a job needs. The caller assembles it from the
// dataset profile; jobs never read config files themselves.
type Deps struct {
	Dataset config.Dataset
	Fetcher fetch.Fetcher
	Cache   *cache.Cache

	// Repo is the optional durable store. Nil disables snapshot writes.
	Repo store.Repository

	// Observer receives validation progress. Nil selects the logging default.
	Observer validate.Observer

	// AsOf is the logical date a job operates on. The zero value means
	// yesterday, the newest date the upstream API has complete data for.
	AsOf time.Time

	// Dates lists the candidate dates for the backfill poll. Dates already
	// cached are skipped.
	Dates []time.Time

	// ReportDir receives the analyze job's CSV reports.
	ReportDir string

	// TopN bounds the best/worst tables in the analyze report. Zero means 5.
	TopN int
}

func (d Deps) observer() validate.Observer {
	if d.Observer != nil {
		return d.Observer
	}
	return validate.LogObserver{}
}

func (d Deps) asOf() time.Time {
	if !d.AsOf.IsZero() {
		return d.AsOf
	}
	return time.Now().AddDate(0, 0, -1)
}

// Job is one named unit of work.
type Job func(ctx context.Context, d Deps) error

// Job monikers accepted by FromName.
const (
	NamePollNYC311    = "job_poll_nyc_311"
	NameAnalyzeNYC311 = "job_analyze_nyc_311"
)

// Registry returns the job table. A fresh map is returned so callers can
// extend it without affecting others.
func Registry() map[string]Job {
	return map[string]Job{
		NamePollNYC311:    Poll,
		NameAnalyzeNYC311: Analyze,
	}
}

// FromName resolves a job by moniker. Unknown names fail fast.
func FromName(name string) (Job, error) {
	if job, ok := Registry()[name]; ok {
		return job, nil
	}
	return nil, fmt.Errorf("jobs: job %q is not implemented", name)
}

// Run resolves and executes a job, assigning a run ID and recording overall
// job metrics. Metrics are flushed after the job regardless of outcome.
func Run(ctx context.Context, name string, d Deps) error {
	job, err := FromName(name)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log.Printf("jobs: starting %s run=%s dataset=%s", name, runID, d.Dataset.Moniker)

	start := time.Now()
	err = job(ctx, d)
	elapsed := time.Since(start)
	metrics.RecordStep(name, "job", err, elapsed)

	if ferr := metrics.Flush(); ferr != nil {
		log.Printf("jobs: metrics flush: %v", ferr)
	}

	if err != nil {
		log.Printf("jobs: %s run=%s failed after %s: %v", name, runID, elapsed.Round(time.Millisecond), err)
		return fmt.Errorf("jobs: %s: %w", name, err)
	}
	log.Printf("jobs: %s run=%s completed in %s", name, runID, elapsed.Round(time.Millisecond))
	return nil
}

package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"civicetl/internal/cache"
	"civicetl/internal/fetch"
	"civicetl/internal/metrics"
	"civicetl/internal/records"
	"civicetl/internal/store"
	"civicetl/internal/validate"
)

// defaultPollWorkers bounds the backfill fan-out when the profile does not.
const defaultPollWorkers = 4

// Poll fetches one logical date, runs the dataset's validation pipeline, and
// lands the annotated batch in the cache and, when configured, the durable
// store. With Dates set it backfills every date not yet cached instead.
func Poll(ctx context.Context, d Deps) error {
	if len(d.Dates) > 0 {
		return pollMissing(ctx, d)
	}
	return pollDate(ctx, d, d.asOf())
}

// pollMissing fans out over the candidate dates that have no cached snapshot
// yet, with bounded concurrency.
func pollMissing(ctx context.Context, d Deps) error {
	cached, err := d.Cache.Dates(d.Dataset.Moniker)
	if err != nil {
		return fmt.Errorf("jobs: list cached dates: %w", err)
	}
	have := make(map[string]struct{}, len(cached))
	for _, day := range cached {
		have[day] = struct{}{}
	}

	workers := d.Dataset.Workers
	if workers <= 0 {
		workers = defaultPollWorkers
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var scheduled int
	for _, asOf := range d.Dates {
		if _, ok := have[asOf.Format(cache.DateLayout)]; ok {
			continue
		}
		scheduled++
		g.Go(func() error { return pollDate(ctx, d, asOf) })
	}
	log.Printf("jobs: polling %d missing dates for %s (workers=%d)", scheduled, d.Dataset.Moniker, workers)
	return g.Wait()
}

func pollDate(ctx context.Context, d Deps, asOf time.Time) error {
	start := time.Now()
	b, err := d.Fetcher.Fetch(ctx, fetch.Query{AsOf: asOf})
	metrics.RecordStep(NamePollNYC311, "fetch", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("fetch %s: %w", asOf.Format("2006-01-02"), err)
	}
	metrics.RecordRows(NamePollNYC311, "fetched", int64(b.Len()))

	obs := d.observer()
	v, err := validate.FromName(d.Fetcher.ValidatorName(), obs)
	if err != nil {
		return err
	}

	start = time.Now()
	b = validate.Run(b, v, obs)
	metrics.RecordStep(NamePollNYC311, "validate", nil, time.Since(start))
	metrics.RecordRows(NamePollNYC311, "flagged", flaggedRows(b))

	start = time.Now()
	err = d.Cache.Write(d.Dataset.Moniker, asOf, b)
	metrics.RecordStep(NamePollNYC311, "cache", err, time.Since(start))
	if err != nil {
		return err
	}
	metrics.RecordRows(NamePollNYC311, "cached", int64(b.Len()))

	if d.Repo == nil || !d.Dataset.Store.Enabled() {
		return nil
	}

	start = time.Now()
	n, err := store.WriteSnapshot(ctx, d.Repo, d.Dataset.Store.Table, asOf, b, d.Dataset.Store.AutoCreateTable)
	metrics.RecordStep(NamePollNYC311, "snapshot", err, time.Since(start))
	if err != nil {
		return err
	}
	metrics.RecordRows(NamePollNYC311, "stored", n)
	if n > 0 {
		metrics.RecordSnapshots(NamePollNYC311, 1)
	}
	return nil
}

// flaggedRows counts rows the rule battery marked for exclusion.
func flaggedRows(b *records.Batch) int64 {
	var n int64
	for _, r := range b.Rows {
		if flag, ok := r[records.ColDropFlag].(bool); ok && flag {
			n++
		}
	}
	return n
}

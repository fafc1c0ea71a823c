package jobs

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"civicetl/internal/analytics"
	"civicetl/internal/cache"
	"civicetl/internal/coerce"
	"civicetl/internal/metrics"
	"civicetl/internal/records"
	"civicetl/internal/rules"
)

const (
	colAgency        = "agency"
	colComplaintType = "complaint_type"

	// colDaysToClose is derived from created_date and closed_date before the
	// descriptive statistics run.
	colDaysToClose = "days_to_close"
)

const defaultTopN = 5

// Analyze loads the cached snapshot for the as-of date, splits off the rows
// the rule battery flagged, derives a days-to-close metric on the clean rows,
// and writes CSV reports: the flagged rows and descriptive statistics grouped
// by agency and by agency/complaint type.
func Analyze(ctx context.Context, d Deps) error {
	asOf := d.asOf()

	start := time.Now()
	b, err := d.Cache.Read(d.Dataset.Moniker, asOf)
	metrics.RecordStep(NameAnalyzeNYC311, "load", err, time.Since(start))
	if err != nil {
		return err
	}
	if b.Empty() {
		log.Printf("jobs: no cached snapshot for %s on %s, nothing to analyze",
			d.Dataset.Moniker, asOf.Format("2006-01-02"))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	clean, flagged := partition(b)
	log.Printf("jobs: analyzing %s on %s: %d clean rows, %d flagged",
		d.Dataset.Moniker, asOf.Format("2006-01-02"), clean.Len(), flagged.Len())

	if err := os.MkdirAll(d.ReportDir, 0o755); err != nil {
		return fmt.Errorf("jobs: report dir: %w", err)
	}

	start = time.Now()
	err = writeFlagged(d, asOf, flagged)
	metrics.RecordStep(NameAnalyzeNYC311, "report_flagged", err, time.Since(start))
	if err != nil {
		return err
	}

	clean = withDaysToClose(clean)

	topN := d.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	for _, group := range [][]string{
		{colAgency},
		{colAgency, colComplaintType},
	} {
		start = time.Now()
		stats, err := analytics.DescriptiveStats(topN, topN, clean, colDaysToClose, group)
		metrics.RecordStep(NameAnalyzeNYC311, "stats", err, time.Since(start))
		if err != nil {
			return fmt.Errorf("jobs: stats by %s: %w", strings.Join(group, ","), err)
		}
		if err := writeStats(d, asOf, group, stats); err != nil {
			return err
		}
	}
	return nil
}

// partition splits a batch on the flag column. Both halves share the source
// column list and row maps; callers must treat them as read-only.
func partition(b *records.Batch) (clean, flagged *records.Batch) {
	clean = &records.Batch{Columns: b.Columns}
	flagged = &records.Batch{Columns: b.Columns}
	for _, r := range b.Rows {
		if isFlagged(r) {
			flagged.Rows = append(flagged.Rows, r)
		} else {
			clean.Rows = append(clean.Rows, r)
		}
	}
	return clean, flagged
}

// isFlagged tolerates both the in-memory bool and the cached "true" string.
func isFlagged(r records.Record) bool {
	switch v := r[records.ColDropFlag].(type) {
	case bool:
		return v
	default:
		return coerce.NormalizeText(v) == "true"
	}
}

// withDaysToClose returns a copy of the batch with a derived fractional-day
// duration column. Rows whose dates do not both parse, or close before they
// open, keep a nil cell and drop out of the statistics.
func withDaysToClose(b *records.Batch) *records.Batch {
	out := b.Clone()
	out.EnsureColumn(colDaysToClose)
	for _, r := range out.Rows {
		created, okC := coerce.ParseDatetime(r[rules.ColCreatedDate])
		closed, okD := coerce.ParseDatetime(r[rules.ColClosedDate])
		if !okC || !okD || closed.Before(created) {
			continue
		}
		r[colDaysToClose] = closed.Sub(created).Hours() / 24
	}
	return out
}

func reportPath(d Deps, asOf time.Time, suffix string) string {
	name := fmt.Sprintf("%s_%s_%s.csv", d.Dataset.Moniker, asOf.Format(cache.DateLayout), suffix)
	return filepath.Join(d.ReportDir, name)
}

// writeFlagged dumps the flagged rows with their reasons for manual review.
// No flagged rows means no file.
func writeFlagged(d Deps, asOf time.Time, flagged *records.Batch) error {
	if flagged.Empty() {
		log.Printf("jobs: no flagged rows for %s on %s", d.Dataset.Moniker, asOf.Format("2006-01-02"))
		return nil
	}
	path := reportPath(d, asOf, "flagged")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jobs: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(flagged.Columns); err != nil {
		return fmt.Errorf("jobs: write header: %w", err)
	}
	row := make([]string, len(flagged.Columns))
	for _, r := range flagged.Rows {
		for i, col := range flagged.Columns {
			row[i] = coerce.AsString(r[col])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("jobs: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("jobs: flush %s: %w", path, err)
	}
	log.Printf("jobs: wrote %s (%d rows)", path, flagged.Len())
	return nil
}

// writeStats writes one CSV per grouping: a stat label, the group keys, and
// the metric value.
func writeStats(d Deps, asOf time.Time, group []string, stats analytics.Stats) error {
	path := reportPath(d, asOf, "stats_"+strings.Join(group, "_"))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jobs: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"stat"}, group...)
	header = append(header, colDaysToClose)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("jobs: write header: %w", err)
	}

	sections := []struct {
		label string
		table analytics.Table
	}{
		{"best", stats.Best},
		{"worst", stats.Worst},
		{"median", stats.Median},
		{"mean", stats.Mean},
	}
	for _, s := range sections {
		for _, e := range s.table.Entries {
			row := append([]string{s.label}, e.Keys...)
			row = append(row, strconv.FormatFloat(e.Value, 'f', -1, 64))
			if err := w.Write(row); err != nil {
				return fmt.Errorf("jobs: write row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("jobs: flush %s: %w", path, err)
	}
	log.Printf("jobs: wrote %s", path)
	return nil
}

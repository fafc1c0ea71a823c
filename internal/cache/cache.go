// Package cache stores validated batch snapshots on the filesystem, keyed by
// dataset moniker and logical as-of date. Snapshots are gzipped CSV files
// under <dir>/<moniker>/<yyyymmdd>/<moniker>.csv.gz. A missing snapshot reads
// back as an empty batch, not an error, so callers can poll-then-fill.
package cache

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"civicetl/internal/coerce"
	"civicetl/internal/records"
)

// DateLayout is the directory name format for as-of dates.
const DateLayout = "20060102"

const utf8BOM = "\uFEFF"

// Cache reads and writes snapshots under a base directory.
type Cache struct {
	Dir string
}

// New returns a Cache rooted at dir.
func New(dir string) *Cache { return &Cache{Dir: dir} }

func (c *Cache) snapshotPath(moniker string, asOf time.Time) string {
	return filepath.Join(c.Dir, moniker, asOf.Format(DateLayout), moniker+".csv.gz")
}

// Write persists the batch for the given date. An empty batch is skipped with
// a log line, matching poll semantics (nothing fetched, nothing cached).
func (c *Cache) Write(moniker string, asOf time.Time, b *records.Batch) error {
	if b.Empty() {
		log.Printf("cache: batch is empty for %s, skipping write", moniker)
		return nil
	}
	path := c.snapshotPath(moniker, asOf)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cache: create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(b.Columns); err != nil {
		return fmt.Errorf("cache: write header: %w", err)
	}
	row := make([]string, len(b.Columns))
	for _, r := range b.Rows {
		for i, col := range b.Columns {
			row[i] = coerce.AsString(r[col])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("cache: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("cache: flush csv: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("cache: close gzip: %w", err)
	}
	log.Printf("cache: wrote %s (%d rows)", path, b.Len())
	return nil
}

// Read loads the snapshot for the given date. A missing snapshot yields an
// empty batch. All cells come back as strings; empty cells stay empty.
func (c *Cache) Read(moniker string, asOf time.Time) (*records.Batch, error) {
	path := c.snapshotPath(moniker, asOf)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("cache: no snapshot at %s", path)
			return &records.Batch{}, nil
		}
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cache: gzip %s: %w", path, err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1

	raw, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return &records.Batch{}, nil
	}

	header := raw[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	b := &records.Batch{Columns: header, Rows: make([]records.Record, 0, len(raw)-1)}
	for _, cells := range raw[1:] {
		rec := make(records.Record, len(header))
		for i, col := range header {
			if i < len(cells) {
				rec[col] = cells[i]
			} else {
				rec[col] = ""
			}
		}
		b.Rows = append(b.Rows, rec)
	}
	log.Printf("cache: read %s (%d rows)", path, b.Len())
	return b, nil
}

// Dates lists the cached as-of dates for a moniker, newest first. A moniker
// with no cache directory yields an empty list.
func (c *Cache) Dates(moniker string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.Dir, moniker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: list %s: %w", moniker, err)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			dates = append(dates, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

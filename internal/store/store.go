// Package store persists validated snapshots to a durable SQL backend. It is
// storage-agnostic: backends implement Repository with their most efficient
// bulk primitive (Postgres COPY, SQLite transactional INSERT), and this
// package maps batches onto rows and owns the snapshot table shape.
//
// The snapshot schema is deliberately dumb: every source column is TEXT, the
// flag column is BOOLEAN, and an as_of column carries the logical date so one
// table can hold many snapshots.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicetl/internal/coerce"
	"civicetl/internal/records"
)

// Repository abstracts a SQL backend's bulk-insert and DDL capabilities.
type Repository interface {
	// CopyFrom inserts rows aligned to columns into table, returning the
	// number of rows written.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Exec runs an arbitrary statement, typically DDL.
	Exec(ctx context.Context, sql string) error
}

// AsOfColumn is appended to every snapshot row.
const AsOfColumn = "as_of"

// SnapshotDDL builds a CREATE TABLE IF NOT EXISTS statement for a snapshot
// table with the given batch columns. Works on both supported backends.
func SnapshotDDL(table string, columns []string) string {
	defs := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		typ := "TEXT"
		if c == records.ColDropFlag {
			typ = "BOOLEAN"
		}
		defs = append(defs, quoteIdent(c)+" "+typ)
	}
	defs = append(defs, quoteIdent(AsOfColumn)+" TEXT")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteQualified(table), strings.Join(defs, ", "))
}

// WriteSnapshot creates the table when asked and bulk-inserts the batch for
// the given as-of date. Empty batches are a no-op.
func WriteSnapshot(
	ctx context.Context,
	repo Repository,
	table string,
	asOf time.Time,
	b *records.Batch,
	createTable bool,
) (int64, error) {
	if b.Empty() {
		return 0, nil
	}
	if createTable {
		if err := repo.Exec(ctx, SnapshotDDL(table, b.Columns)); err != nil {
			return 0, fmt.Errorf("store: create snapshot table: %w", err)
		}
	}

	columns := append(append([]string(nil), b.Columns...), AsOfColumn)
	asOfStr := asOf.Format("2006-01-02")

	rows := make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		row := make([]any, len(columns))
		for j, col := range b.Columns {
			v := r[col]
			if col == records.ColDropFlag {
				if flag, ok := v.(bool); ok {
					row[j] = flag
				} else {
					row[j] = coerce.NormalizeText(v) == "true"
				}
				continue
			}
			if v == nil {
				row[j] = nil
			} else {
				row[j] = coerce.AsString(v)
			}
		}
		row[len(columns)-1] = asOfStr
		rows[i] = row
	}

	n, err := repo.CopyFrom(ctx, table, columns, rows)
	if err != nil {
		return n, fmt.Errorf("store: copy snapshot: %w", err)
	}
	return n, nil
}

// quoteIdent quotes a single identifier segment with double quotes, which
// both Postgres and SQLite accept.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// quoteQualified quotes a possibly schema-qualified name like
// "public.snapshots" segment by segment.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

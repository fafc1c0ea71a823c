// Package records defines the in-memory table model shared by the fetch,
// validation, cache, and analytics layers: an ordered set of named columns
// plus a slice of row maps. Batches are passed through the pipeline as
// values; stage functions return new batches instead of mutating their
// input, so multiple holders of a batch never observe each other's edits.
package records

// Record is a single row: column name -> value. Values are strings, numbers,
// time.Time, or nil for absent cells.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is an ordered table of records. Columns carries display order;
// Rows carries insertion order.
type Batch struct {
	Columns []string
	Rows    []Record
}

// Annotation column names appended by the validation pass. The names are part
// of the cached-snapshot contract and must not change.
const (
	ColDropFlag   = "DROP_FLAG"
	ColDropReason = "DROP_REASON"
)

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.Rows) }

// Empty reports whether the batch has no rows.
func (b *Batch) Empty() bool { return len(b.Rows) == 0 }

// HasColumn reports whether the named column is present.
func (b *Batch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// HasColumns reports whether every named column is present.
func (b *Batch) HasColumns(names ...string) bool {
	for _, n := range names {
		if !b.HasColumn(n) {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy: new column slice, new row slice, and new
// row maps. Cell values are shared (they are treated as immutable).
func (b *Batch) Clone() *Batch {
	out := &Batch{
		Columns: append([]string(nil), b.Columns...),
		Rows:    make([]Record, len(b.Rows)),
	}
	for i, r := range b.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// EnsureColumn appends the column to the ordering if it is not already there.
func (b *Batch) EnsureColumn(name string) {
	if !b.HasColumn(name) {
		b.Columns = append(b.Columns, name)
	}
}

// Column returns the values of one column in row order. Missing cells are nil.
func (b *Batch) Column(name string) []any {
	out := make([]any, len(b.Rows))
	for i, r := range b.Rows {
		out[i] = r[name]
	}
	return out
}

package records

import (
	"reflect"
	"testing"
)

func TestCloneIsIndependent(t *testing.T) {
	b := &Batch{
		Columns: []string{"a", "b"},
		Rows:    []Record{{"a": "1", "b": "2"}},
	}
	c := b.Clone()
	c.Columns[0] = "x"
	c.Rows[0]["a"] = "changed"
	c.Rows = append(c.Rows, Record{"a": "3"})

	if b.Columns[0] != "a" || b.Rows[0]["a"] != "1" || b.Len() != 1 {
		t.Fatalf("clone leaked into original: %+v", b)
	}
}

func TestEnsureColumn(t *testing.T) {
	b := &Batch{Columns: []string{"a"}}
	b.EnsureColumn("b")
	b.EnsureColumn("a") // idempotent

	if !reflect.DeepEqual(b.Columns, []string{"a", "b"}) {
		t.Fatalf("columns = %v", b.Columns)
	}
}

func TestHasColumns(t *testing.T) {
	b := &Batch{Columns: []string{"a", "b"}}
	if !b.HasColumns("a", "b") {
		t.Fatal("expected both columns present")
	}
	if b.HasColumns("a", "c") {
		t.Fatal("missing column must fail the check")
	}
	if !b.HasColumns() {
		t.Fatal("vacuous check must pass")
	}
}

func TestColumn(t *testing.T) {
	b := &Batch{
		Columns: []string{"a"},
		Rows:    []Record{{"a": "1"}, {}},
	}
	got := b.Column("a")
	if !reflect.DeepEqual(got, []any{"1", nil}) {
		t.Fatalf("column = %v", got)
	}
}

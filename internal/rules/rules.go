// Package rules implements the batch validation engine: an ordered battery of
// independent, named checks evaluated over a records.Batch. Rules flag rows,
// they never drop them. Each firing rule contributes its name to a per-row
// reason string, and the union of masks drives a per-row boolean flag. The
// two derived values are appended to the batch as the DROP_FLAG and
// DROP_REASON columns.
//
// Failure policy: a rule whose required columns are absent is a no-op, and a
// rule whose evaluation errors (or panics) is converted into a zero-row
// diagnostic entry so one broken check can never lose the batch or suppress
// the remaining checks.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"civicetl/internal/records"
)

// Mask is a per-row boolean vector, true where a rule's condition failed.
type Mask []bool

// Any reports whether at least one row is marked.
func (m Mask) Any() bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

// Count returns the number of marked rows.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Rule is one named check. Columns lists the columns the rule needs; when any
// of them is absent from the batch the rule is skipped entirely. Eval returns
// a mask aligned to the batch rows, or an error for unexpected internal
// failures (which the engine downgrades to a diagnostic).
type Rule struct {
	Name    string
	Columns []string
	Eval    func(b *records.Batch) (Mask, error)
}

// Count pairs a rule name with the number of rows it flagged. Diagnostic
// entries carry zero.
type Count struct {
	Name string
	Rows int
}

// Reporter receives the post-evaluation summary. Implementations must not
// influence the returned batch; this is an observability seam only.
type Reporter interface {
	// Summary is called once per evaluation pass. counts is sorted by rule
	// name and contains only rules that fired (plus zero-row diagnostics).
	Summary(totalFlagged int, counts []Count)
}

// NopReporter discards summaries. It is the default so the engine is usable
// without any logging side effects.
type NopReporter struct{}

func (NopReporter) Summary(int, []Count) {}

// Evaluate runs the ruleset over the batch and returns a new annotated batch.
// Row count and order are preserved exactly; the input batch is not mutated.
// Reasons are joined in alphabetical rule-name order so output is
// byte-deterministic regardless of ruleset order.
func Evaluate(b *records.Batch, ruleset []Rule, rep Reporter) *records.Batch {
	if rep == nil {
		rep = NopReporter{}
	}

	fired := make(map[string]Mask)
	var diagnostics []string

	for _, rule := range ruleset {
		if !b.HasColumns(rule.Columns...) {
			// Optional column not in this dataset; not an error.
			continue
		}
		mask, err := evalSafe(rule, b)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("%s error: %v", rule.Name, err))
			continue
		}
		if len(mask) != b.Len() || !mask.Any() {
			// Clean rules contribute nothing to the report.
			continue
		}
		fired[rule.Name] = mask
	}

	out := b.Clone()
	out.EnsureColumn(records.ColDropFlag)
	out.EnsureColumn(records.ColDropReason)

	names := make([]string, 0, len(fired))
	for name := range fired {
		names = append(names, name)
	}
	sort.Strings(names)

	totalFlagged := 0
	for i, row := range out.Rows {
		var reasons []string
		for _, name := range names {
			if fired[name][i] {
				reasons = append(reasons, name)
			}
		}
		flagged := len(reasons) > 0
		if flagged {
			totalFlagged++
		}
		row[records.ColDropFlag] = flagged
		row[records.ColDropReason] = strings.Join(reasons, "; ")
	}

	counts := make([]Count, 0, len(names)+len(diagnostics))
	for _, name := range names {
		counts = append(counts, Count{Name: name, Rows: fired[name].Count()})
	}
	for _, d := range diagnostics {
		counts = append(counts, Count{Name: d, Rows: 0})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Name < counts[j].Name })

	rep.Summary(totalFlagged, counts)
	return out
}

// evalSafe invokes the rule and converts panics into errors so a misbehaving
// check cannot abort the pass.
func evalSafe(rule Rule, b *records.Batch) (mask Mask, err error) {
	defer func() {
		if r := recover(); r != nil {
			mask, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Eval(b)
}

// Package analytics computes descriptive summaries (best-N, worst-N, median,
// mean) of a numeric metric over a validated batch, optionally grouped by one
// or more columns. Results are small ordered tables with deterministic sort
// and tie-break behavior so repeated runs over the same snapshot are
// byte-comparable.
package analytics

import (
	"fmt"
	"sort"
	"strings"

	"civicetl/internal/coerce"
	"civicetl/internal/records"
)

// Entry is one output row: the group key values (empty for ungrouped
// aggregation) and the aggregated metric value.
type Entry struct {
	Keys  []string
	Value float64
}

// Table is an ordered aggregation result.
type Table struct {
	GroupColumns []string
	MetricColumn string
	Entries      []Entry
}

// Stats bundles the four descriptive tables for one metric.
type Stats struct {
	Best   Table
	Worst  Table
	Median Table
	Mean   Table
}

// checkColumns verifies the metric and group columns exist, reporting every
// missing column in one error.
func checkColumns(b *records.Batch, metric string, group []string) error {
	var missing []string
	for _, c := range append([]string{metric}, group...) {
		if !b.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("analytics: missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TopNBest returns the n smallest metric values ascending. Grouped, it ranks
// groups by their per-group minimum. Text-typed numerics are coerced; rows
// whose metric is null or non-numeric are excluded.
func TopNBest(n int, b *records.Batch, metric string, group []string) (Table, error) {
	if err := checkColumns(b, metric, group); err != nil {
		return Table{}, err
	}
	return topNBest(n, b, metric, group), nil
}

// TopNWorst mirrors TopNBest with per-group maximum and descending order.
func TopNWorst(n int, b *records.Batch, metric string, group []string) (Table, error) {
	if err := checkColumns(b, metric, group); err != nil {
		return Table{}, err
	}
	return topNWorst(n, b, metric, group), nil
}

// Median returns the per-group (or overall) median, sorted descending.
func Median(b *records.Batch, metric string, group []string) (Table, error) {
	if err := checkColumns(b, metric, group); err != nil {
		return Table{}, err
	}
	return aggregate(b, metric, group, median), nil
}

// Mean returns the per-group (or overall) arithmetic mean, sorted descending.
func Mean(b *records.Batch, metric string, group []string) (Table, error) {
	if err := checkColumns(b, metric, group); err != nil {
		return Table{}, err
	}
	return aggregate(b, metric, group, mean), nil
}

// DescriptiveStats computes all four tables with a single up-front column
// check.
func DescriptiveStats(nBest, nWorst int, b *records.Batch, metric string, group []string) (Stats, error) {
	if err := checkColumns(b, metric, group); err != nil {
		return Stats{}, err
	}
	return Stats{
		Best:   topNBest(nBest, b, metric, group),
		Worst:  topNWorst(nWorst, b, metric, group),
		Median: aggregate(b, metric, group, median),
		Mean:   aggregate(b, metric, group, mean),
	}, nil
}

// sample is the metric values of one group, keyed by its group values.
type sample struct {
	keys   []string
	values []float64
}

// collect extracts non-null numeric metric values, partitioned by group key.
// Ungrouped input yields a single sample with empty keys. Group keys with
// null cells are kept (the null renders as an empty key component).
func collect(b *records.Batch, metric string, group []string) []sample {
	byKey := make(map[string]*sample)
	var order []string
	for _, r := range b.Rows {
		v, ok := coerce.ParseFloat(r[metric])
		if !ok {
			continue
		}
		keys := make([]string, len(group))
		for i, g := range group {
			keys[i] = coerce.NormalizeText(r[g])
		}
		mapKey := strings.Join(keys, "\x1f")
		s, exists := byKey[mapKey]
		if !exists {
			s = &sample{keys: keys}
			byKey[mapKey] = s
			order = append(order, mapKey)
		}
		s.values = append(s.values, v)
	}
	out := make([]sample, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func topNBest(n int, b *records.Batch, metric string, group []string) Table {
	t := Table{GroupColumns: group, MetricColumn: metric}
	if len(group) == 0 {
		values := ungroupedValues(b, metric)
		sort.Float64s(values)
		for i := 0; i < n && i < len(values); i++ {
			t.Entries = append(t.Entries, Entry{Value: values[i]})
		}
		return t
	}
	entries := groupReduce(b, metric, group, func(vs []float64) float64 {
		m := vs[0]
		for _, v := range vs[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
	sortEntries(entries, true)
	t.Entries = clip(entries, n)
	return t
}

func topNWorst(n int, b *records.Batch, metric string, group []string) Table {
	t := Table{GroupColumns: group, MetricColumn: metric}
	if len(group) == 0 {
		values := ungroupedValues(b, metric)
		sort.Sort(sort.Reverse(sort.Float64Slice(values)))
		for i := 0; i < n && i < len(values); i++ {
			t.Entries = append(t.Entries, Entry{Value: values[i]})
		}
		return t
	}
	entries := groupReduce(b, metric, group, func(vs []float64) float64 {
		m := vs[0]
		for _, v := range vs[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
	sortEntries(entries, false)
	t.Entries = clip(entries, n)
	return t
}

// aggregate computes a reduction per group (or overall) and presents it
// sorted descending by value.
func aggregate(b *records.Batch, metric string, group []string, reduce func([]float64) float64) Table {
	t := Table{GroupColumns: group, MetricColumn: metric}
	if len(group) == 0 {
		values := ungroupedValues(b, metric)
		if len(values) == 0 {
			return t
		}
		t.Entries = []Entry{{Value: reduce(values)}}
		return t
	}
	entries := groupReduce(b, metric, group, reduce)
	sortEntries(entries, false)
	t.Entries = entries
	return t
}

func ungroupedValues(b *records.Batch, metric string) []float64 {
	samples := collect(b, metric, nil)
	if len(samples) == 0 {
		return nil
	}
	return samples[0].values
}

func groupReduce(b *records.Batch, metric string, group []string, reduce func([]float64) float64) []Entry {
	samples := collect(b, metric, group)
	entries := make([]Entry, 0, len(samples))
	for _, s := range samples {
		entries = append(entries, Entry{Keys: s.keys, Value: reduce(s.values)})
	}
	return entries
}

// sortEntries orders by value (ascending or descending) with ties broken by
// group key ascending, so output order is fully deterministic.
func sortEntries(entries []Entry, ascending bool) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			if ascending {
				return entries[i].Value < entries[j].Value
			}
			return entries[i].Value > entries[j].Value
		}
		return lessKeys(entries[i].Keys, entries[j].Keys)
	})
}

func lessKeys(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func clip(entries []Entry, n int) []Entry {
	if n < 0 {
		n = 0
	}
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func median(vs []float64) float64 {
	s := append([]float64(nil), vs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// Package coerce contains best-effort column coercion helpers used by the
// validation rules and the analytics engine. Coercion never returns an error
// for malformed input; it downgrades to a zero value plus a false ok-flag and
// leaves significance to the rule layer.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"civicetl/internal/records"
)

// DatetimeLayouts is the ordered battery of layouts tried by ParseDatetime.
// The canonical cache format ("2006-01-02 15:04:05") comes first because
// normalized snapshots round-trip through it.
var DatetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006 03:04:05 PM",
}

// NormalizeText renders a cell as a comparable string: nil becomes "", other
// values are stringified, NFC-normalized, and trimmed. Absent, blank, and
// padded values all compare equal after this.
func NormalizeText(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(norm.NFC.String(AsString(v)))
}

// ParseDatetime attempts a strict parse of a datetime-like cell. It reports
// ok=false for nil, empty, and unparseable input instead of failing.
func ParseDatetime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	}
	s := NormalizeText(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DatetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseFloat coerces a cell to float64. NaN counts as absent.
func ParseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), !math.IsNaN(float64(t))
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	s := NormalizeText(v)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// AsString converts common cell types without fmt.Sprint overhead.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// absentSentinel is the canonical form shared by nil and NaN cells so that
// "missing" compares equal regardless of how the source encoded it.
const absentSentinel = "\x00"

// CanonicalRow renders a row as one deterministic string over the given
// column order. Nested maps/slices are JSON-encoded with sorted keys; nil and
// NaN collapse to a single sentinel. Two rows with the same semantic content
// produce byte-identical output regardless of nested key insertion order.
func CanonicalRow(r records.Record, columns []string) (string, error) {
	var b strings.Builder
	for i, col := range columns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		s, err := canonicalValue(r[col])
		if err != nil {
			return "", fmt.Errorf("coerce: column %q: %w", col, err)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// HashRow returns an xxh3 digest of the canonical row form, used for
// batch-scoped full-row duplicate detection.
func HashRow(r records.Record, columns []string) (uint64, error) {
	s, err := CanonicalRow(r, columns)
	if err != nil {
		return 0, err
	}
	return xxh3.HashString(s), nil
}

func canonicalValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return absentSentinel, nil
	case float64:
		if math.IsNaN(t) {
			return absentSentinel, nil
		}
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case float32:
		if math.IsNaN(float64(t)) {
			return absentSentinel, nil
		}
		return strconv.FormatFloat(float64(t), 'g', -1, 64), nil
	case string, int, int32, int64, bool, time.Time:
		return AsString(t), nil
	case map[string]any:
		return marshalSorted(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			s, err := canonicalValue(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	default:
		// Uncommon but encodable types go through JSON; truly unencodable
		// values (channels, funcs) surface as an error for the rule layer.
		raw, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// marshalSorted JSON-encodes a map with deterministic key order. encoding/json
// already sorts map keys, but nested any-values are canonicalized first so
// NaN and nil inside collections also collapse to the sentinel.
func marshalSorted(m map[string]any) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		b.Write(kj)
		b.WriteByte(':')
		s, err := canonicalValue(m[k])
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	b.WriteByte('}')
	return b.String(), nil
}

package rules

import (
	"regexp"
	"strconv"
	"strings"

	"civicetl/internal/coerce"
	"civicetl/internal/records"
)

// Column names of the NYC Open Data 311 service-request dataset. All columns
// are optional; a rule whose columns are missing simply does not run.
const (
	ColUniqueKey        = "unique_key"
	ColCreatedDate      = "created_date"
	ColClosedDate       = "closed_date"
	ColResolutionUpdate = "resolution_action_updated_date"
	ColStatus           = "status"
	ColLatitude         = "latitude"
	ColLongitude        = "longitude"
	ColXStatePlane      = "x_coordinate_state_plane_"
	ColYStatePlane      = "y_coordinate_state_plane_"
	ColIncidentZip      = "incident_zip"
	ColBorough          = "borough"
)

// Geographic and categorical constants for the NYC jurisdiction.
var (
	nycLatBounds = [2]float64{40.0, 41.0}
	nycLonBounds = [2]float64{-75.0, -72.0}
	nycXBounds   = [2]float64{900_000, 1_070_000}
	nycYBounds   = [2]float64{120_000, 275_000}

	nycBoroughs = map[string]struct{}{
		"BRONX":         {},
		"BROOKLYN":      {},
		"MANHATTAN":     {},
		"QUEENS":        {},
		"STATEN ISLAND": {},
		"UNSPECIFIED":   {},
	}

	zipRe = regexp.MustCompile(`^\d{5}$`)
)

const (
	zipMin = 10001
	zipMax = 11697
)

// NYC311Ruleset returns the fixed rule battery for NYC 311 service requests.
// Rule names double as the human-readable reason strings and are part of the
// cached-snapshot contract.
func NYC311Ruleset() []Rule {
	return []Rule{
		{
			Name:    "unique_key null",
			Columns: []string{ColUniqueKey},
			Eval:    maskRows(func(r records.Record) bool { return r[ColUniqueKey] == nil }),
		},
		{
			Name:    "unique_key duplicate",
			Columns: []string{ColUniqueKey},
			Eval:    duplicateKeyMask(ColUniqueKey),
		},
		{
			Name: "full-row duplicate",
			Eval: fullRowDuplicateMask,
		},
		dateUnparsableRule(ColCreatedDate),
		dateUnparsableRule(ColClosedDate),
		dateUnparsableRule(ColResolutionUpdate),
		dateOrderRule("closed_date before created_date", ColClosedDate, ColCreatedDate),
		dateOrderRule("resolution_action_updated_date before created_date", ColResolutionUpdate, ColCreatedDate),
		{
			Name:    "closed_date set but status not closed",
			Columns: []string{ColStatus, ColClosedDate},
			Eval: maskRows(func(r records.Record) bool {
				_, hasClosed := coerce.ParseDatetime(r[ColClosedDate])
				return hasClosed && !statusClosed(r[ColStatus])
			}),
		},
		{
			Name:    "closed status but closed_date missing",
			Columns: []string{ColStatus, ColClosedDate},
			Eval: maskRows(func(r records.Record) bool {
				_, hasClosed := coerce.ParseDatetime(r[ColClosedDate])
				return !hasClosed && statusClosed(r[ColStatus])
			}),
		},
		boundsRule("latitude outside NYC", ColLatitude, nycLatBounds),
		boundsRule("longitude outside NYC", ColLongitude, nycLonBounds),
		{
			Name:    "lat present xor lon present",
			Columns: []string{ColLatitude, ColLongitude},
			Eval: maskRows(func(r records.Record) bool {
				return present(r[ColLatitude]) != present(r[ColLongitude])
			}),
		},
		boundsRule("x_coordinate_state_plane_ out of bounds", ColXStatePlane, nycXBounds),
		boundsRule("y_coordinate_state_plane_ out of bounds", ColYStatePlane, nycYBounds),
		{
			Name:    "incident_zip not 5-digit",
			Columns: []string{ColIncidentZip},
			Eval: maskRows(func(r records.Record) bool {
				z := coerce.NormalizeText(r[ColIncidentZip])
				return z != "" && !zipRe.MatchString(z)
			}),
		},
		{
			Name:    "incident_zip outside NYC range",
			Columns: []string{ColIncidentZip},
			Eval: maskRows(func(r records.Record) bool {
				z := coerce.NormalizeText(r[ColIncidentZip])
				if !zipRe.MatchString(z) {
					return false
				}
				n, err := strconv.Atoi(z)
				return err == nil && (n < zipMin || n > zipMax)
			}),
		},
		{
			Name:    "borough unexpected value",
			Columns: []string{ColBorough},
			Eval: maskRows(func(r records.Record) bool {
				b := strings.ToUpper(coerce.NormalizeText(r[ColBorough]))
				if b == "" {
					return false
				}
				_, ok := nycBoroughs[b]
				return !ok
			}),
		},
	}
}

// maskRows lifts a row predicate into a batch mask evaluator.
func maskRows(pred func(records.Record) bool) func(*records.Batch) (Mask, error) {
	return func(b *records.Batch) (Mask, error) {
		mask := make(Mask, b.Len())
		for i, r := range b.Rows {
			mask[i] = pred(r)
		}
		return mask, nil
	}
}

// duplicateKeyMask flags every occurrence of a repeated key value except the
// first (keep=first semantics). Null keys form their own duplicate group.
func duplicateKeyMask(col string) func(*records.Batch) (Mask, error) {
	return func(b *records.Batch) (Mask, error) {
		mask := make(Mask, b.Len())
		seen := make(map[string]struct{}, b.Len())
		for i, r := range b.Rows {
			key, err := coerce.CanonicalRow(r, []string{col})
			if err != nil {
				return nil, err
			}
			if _, dup := seen[key]; dup {
				mask[i] = true
			} else {
				seen[key] = struct{}{}
			}
		}
		return mask, nil
	}
}

// fullRowDuplicateMask flags repeated whole-row content, first occurrence
// exempt. The annotation columns are excluded so re-validating an annotated
// batch gives identical results.
func fullRowDuplicateMask(b *records.Batch) (Mask, error) {
	cols := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		if c == records.ColDropFlag || c == records.ColDropReason {
			continue
		}
		cols = append(cols, c)
	}
	mask := make(Mask, b.Len())
	seen := make(map[uint64]struct{}, b.Len())
	for i, r := range b.Rows {
		h, err := coerce.HashRow(r, cols)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[h]; dup {
			mask[i] = true
		} else {
			seen[h] = struct{}{}
		}
	}
	return mask, nil
}

func dateUnparsableRule(col string) Rule {
	return Rule{
		Name:    col + " unparsable",
		Columns: []string{col},
		Eval: maskRows(func(r records.Record) bool {
			raw := coerce.NormalizeText(r[col])
			if raw == "" {
				return false
			}
			_, ok := coerce.ParseDatetime(r[col])
			return !ok
		}),
	}
}

// dateOrderRule flags rows where endCol is strictly before startCol; rows
// with either side missing or unparseable are left alone.
func dateOrderRule(name, endCol, startCol string) Rule {
	return Rule{
		Name:    name,
		Columns: []string{endCol, startCol},
		Eval: maskRows(func(r records.Record) bool {
			end, okEnd := coerce.ParseDatetime(r[endCol])
			start, okStart := coerce.ParseDatetime(r[startCol])
			return okEnd && okStart && end.Before(start)
		}),
	}
}

func boundsRule(name, col string, bounds [2]float64) Rule {
	return Rule{
		Name:    name,
		Columns: []string{col},
		Eval: maskRows(func(r records.Record) bool {
			v, ok := coerce.ParseFloat(r[col])
			return ok && (v < bounds[0] || v > bounds[1])
		}),
	}
}

func statusClosed(v any) bool {
	switch strings.ToUpper(coerce.NormalizeText(v)) {
	case "CLOSED", "RESOLVED":
		return true
	}
	return false
}

func present(v any) bool { return coerce.NormalizeText(v) != "" }

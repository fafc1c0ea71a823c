package validate

import (
	"civicetl/internal/coerce"
	"civicetl/internal/records"
	"civicetl/internal/rules"
)

// cacheTimeLayout is the canonical on-disk datetime format for normalized
// snapshots.
const cacheTimeLayout = "2006-01-02 15:04:05"

// nycTextColumns are the categorical columns trimmed during Clean.
var nycTextColumns = []string{"borough", "status", "agency", "complaint_type"}

// nycDatetimeColumns are rewritten to cacheTimeLayout during Normalize.
var nycDatetimeColumns = []string{
	rules.ColCreatedDate,
	rules.ColClosedDate,
	rules.ColResolutionUpdate,
}

// NYC311 is the validator for NYC Open Data 311 service requests.
type NYC311 struct {
	Observer Observer
}

func (*NYC311) Name() string { return NameNYC311 }

// Clean trims whitespace on the key categorical columns.
func (*NYC311) Clean(b *records.Batch) *records.Batch {
	out := b.Clone()
	for _, col := range nycTextColumns {
		if !out.HasColumn(col) {
			continue
		}
		for _, r := range out.Rows {
			if r[col] != nil {
				r[col] = coerce.NormalizeText(r[col])
			}
		}
	}
	return out
}

// Normalize rewrites the datetime columns to one canonical string format.
// Unparseable values become empty rather than raising; the unparsable-date
// rules therefore only fire on pre-normalization input.
func (*NYC311) Normalize(b *records.Batch) *records.Batch {
	out := b.Clone()
	for _, col := range nycDatetimeColumns {
		if !out.HasColumn(col) {
			continue
		}
		for _, r := range out.Rows {
			if r[col] == nil {
				continue
			}
			if ts, ok := coerce.ParseDatetime(r[col]); ok {
				r[col] = ts.Format(cacheTimeLayout)
			} else {
				r[col] = ""
			}
		}
	}
	return out
}

// Validate runs the fixed NYC 311 rule battery and appends the DROP_FLAG and
// DROP_REASON columns. No rows are dropped.
func (v *NYC311) Validate(b *records.Batch) *records.Batch {
	obs := v.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	return rules.Evaluate(b, rules.NYC311Ruleset(), obs)
}

// Finalize collapses nil reason cells to the empty string for consistency.
// It is the post-validation seam for cosmetic fixes so Normalize stays
// untouched by them.
func (*NYC311) Finalize(b *records.Batch) *records.Batch {
	if !b.HasColumn(records.ColDropReason) {
		return b
	}
	out := b.Clone()
	for _, r := range out.Rows {
		if r[records.ColDropReason] == nil {
			r[records.ColDropReason] = ""
		}
	}
	return out
}

package validate

import "civicetl/internal/records"

// Generic is the documented fallback for datasets without custom rules: no
// cleaning, no normalization, no flagging. Batches pass through unchanged.
type Generic struct{}

func (Generic) Name() string { return NameGeneric }

func (Generic) Clean(b *records.Batch) *records.Batch     { return b }
func (Generic) Normalize(b *records.Batch) *records.Batch { return b }
func (Generic) Validate(b *records.Batch) *records.Batch  { return b }
func (Generic) Finalize(b *records.Batch) *records.Batch  { return b }

// Package validate sequences the batch validation pipeline: clean ->
// normalize -> validate -> finalize. Each stage is a pure transformation of a
// records.Batch; the concrete behavior bundle (a Validator) is selected by
// dataset moniker through an explicit registry rather than by reflection or
// inheritance. Progress and summary logging go through an injected Observer
// with a no-op default so the pipeline stays testable without global logging
// side effects.
package validate

import (
	"fmt"
	"log"
	"strings"

	"civicetl/internal/records"
	"civicetl/internal/rules"
)

// Validator is the fixed behavior bundle applied to one dataset kind. Every
// stage returns a new batch and leaves its input untouched.
type Validator interface {
	Name() string
	Clean(b *records.Batch) *records.Batch
	Normalize(b *records.Batch) *records.Batch
	Validate(b *records.Batch) *records.Batch
	Finalize(b *records.Batch) *records.Batch
}

// Observer receives stage progress and the rule-engine summary. Callers must
// not rely on specific text; only the returned batch is contractual.
type Observer interface {
	Stage(name string)
	rules.Reporter
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) Stage(string)              {}
func (NopObserver) Summary(int, []rules.Count) {}

// LogObserver writes stage and summary lines through the standard logger.
type LogObserver struct{}

func (LogObserver) Stage(name string) { log.Printf("validate: %s...", name) }

func (LogObserver) Summary(totalFlagged int, counts []rules.Count) {
	if totalFlagged == 0 && len(counts) == 0 {
		log.Printf("validate: summary -> no issues found.")
		return
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s: %d", c.Name, c.Rows)
	}
	log.Printf("validate: summary -> flagged %d rows. %s", totalFlagged, strings.Join(parts, "; "))
}

// Run executes the four stages in order. An empty batch short-circuits: no
// stage runs, no log line is emitted, and the batch is returned unchanged.
func Run(b *records.Batch, v Validator, obs Observer) *records.Batch {
	if obs == nil {
		obs = NopObserver{}
	}
	if b.Empty() {
		return b
	}
	obs.Stage("using validator: " + v.Name())

	obs.Stage("cleaning")
	b = v.Clean(b)

	obs.Stage("normalizing")
	b = v.Normalize(b)

	obs.Stage("validating")
	b = v.Validate(b)

	obs.Stage("finalizing")
	b = v.Finalize(b)

	return b
}

// Validator monikers accepted by FromName.
const (
	NameGeneric = "ValidatorGeneric"
	NameNYC311  = "ValidatorNYCOpen311Service"
)

// FromName resolves a validator by moniker. The empty name and NameGeneric
// both yield the documented no-op validator; any other unknown name is a
// configuration error, not a data error.
func FromName(name string, obs Observer) (Validator, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	switch name {
	case "", NameGeneric:
		return Generic{}, nil
	case NameNYC311:
		return &NYC311{Observer: obs}, nil
	default:
		return nil, fmt.Errorf("validate: validator %q is not implemented", name)
	}
}

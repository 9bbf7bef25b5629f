package tabulate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/acs-cli/internal/model"
)

// ZeroDenominatorPolicy controls what Derive does with a record whose
// denominator column is zero. One policy is chosen per pipeline configuration
// and applied uniformly to every record of the run.
type ZeroDenominatorPolicy string

const (
	// TreatAsZero sets the ratio to 0 when the denominator is zero.
	TreatAsZero ZeroDenominatorPolicy = "treat_as_zero"
	// MarkUndefined keeps the record but marks its ratio undefined,
	// distinguishable from a true 0.
	MarkUndefined ZeroDenominatorPolicy = "mark_undefined"
	// ExcludeRow drops the record from the derived output entirely. Excluded
	// rows never enter a later summarization's percentage base.
	ExcludeRow ZeroDenominatorPolicy = "exclude_row"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (ZeroDenominatorPolicy, error) {
	switch p := ZeroDenominatorPolicy(s); p {
	case TreatAsZero, MarkUndefined, ExcludeRow:
		return p, nil
	default:
		return "", model.NewConfigurationError("zero_denominator",
			eris.Errorf("unknown policy %q", s))
	}
}

// Derive computes ratio = numerator/denominator for every record, applying
// policy when the denominator is zero. A record missing either named column
// fails with a ComputationError; a gap is an error, never a silent default.
//
// The computation is a pure per-record float64 division: identical inputs and
// policy yield byte-identical ratios regardless of record order.
func Derive(records []model.WideRecord, numerator, denominator string, policy ZeroDenominatorPolicy) ([]model.DerivedRecord, error) {
	out := make([]model.DerivedRecord, 0, len(records))

	for _, r := range records {
		num, ok := r.Column(numerator)
		if !ok {
			return nil, model.NewComputationError(r.GeographyID, numerator,
				eris.New("numerator column absent"))
		}
		den, ok := r.Column(denominator)
		if !ok {
			return nil, model.NewComputationError(r.GeographyID, denominator,
				eris.New("denominator column absent"))
		}

		if den > 0 {
			out = append(out, model.DerivedRecord{WideRecord: r, Ratio: num / den})
			continue
		}

		switch policy {
		case TreatAsZero:
			out = append(out, model.DerivedRecord{WideRecord: r, Ratio: 0})
		case MarkUndefined:
			out = append(out, model.DerivedRecord{WideRecord: r, RatioUndefined: true})
		case ExcludeRow:
			// dropped
		default:
			return nil, model.NewConfigurationError("zero_denominator",
				eris.Errorf("unknown policy %q", policy))
		}
	}

	return out, nil
}

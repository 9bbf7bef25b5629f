package tabulate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/acs-cli/internal/model"
)

// OutOfRange is the designated category for records whose ratio exceeds
// every threshold or whose ratio is marked undefined. Such records are
// reported, never silently dropped.
const OutOfRange = "Undefined/out of range"

// Threshold is one category boundary: records with ratio below Max (below or
// equal for the final threshold) fall into Label.
type Threshold struct {
	Label string  `yaml:"label"`
	Max   float64 `yaml:"max"`
}

// ValidateThresholds checks that the threshold list is non-empty and strictly
// increasing. The list together with OutOfRange is exhaustive by construction.
func ValidateThresholds(thresholds []Threshold) error {
	if len(thresholds) == 0 {
		return model.NewConfigurationError("thresholds", eris.New("empty threshold list"))
	}
	for i, t := range thresholds {
		if t.Label == "" {
			return model.NewConfigurationError("thresholds", eris.Errorf("threshold %d has no label", i))
		}
		if i > 0 && t.Max <= thresholds[i-1].Max {
			return model.NewConfigurationError("thresholds",
				eris.Errorf("threshold %q (%g) not greater than %q (%g)",
					t.Label, t.Max, thresholds[i-1].Label, thresholds[i-1].Max))
		}
	}
	return nil
}

// Categorize assigns a record's ratio to the first threshold whose upper
// bound exceeds it, checked in ascending order. The final threshold is
// inclusive of its bound so the configured range has no gap at the maximum.
func Categorize(r model.DerivedRecord, thresholds []Threshold) string {
	if r.RatioUndefined {
		return OutOfRange
	}
	last := len(thresholds) - 1
	for i, t := range thresholds {
		if r.Ratio < t.Max || (i == last && r.Ratio == t.Max) {
			return t.Label
		}
	}
	return OutOfRange
}

// Summarize tabulates category counts and percentages over records. Every
// record is classified (OutOfRange included), so the percentage base is
// exactly len(records); rows excluded upstream by the ExcludeRow policy were
// never in records and so never enter the base.
//
// One CategorySummary is returned per category present, ordered by
// displayOrder; present categories absent from displayOrder follow in
// threshold order, with OutOfRange last.
func Summarize(records []model.DerivedRecord, thresholds []Threshold, displayOrder []string) ([]model.CategorySummary, error) {
	if err := ValidateThresholds(thresholds); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[Categorize(r, thresholds)]++
	}

	total := len(records)
	emitted := make(map[string]bool)
	var out []model.CategorySummary

	emit := func(category string) {
		n, present := counts[category]
		if !present || emitted[category] {
			return
		}
		emitted[category] = true
		out = append(out, model.CategorySummary{
			Category:   category,
			Count:      n,
			Percentage: float64(n) / float64(total) * 100,
		})
	}

	for _, c := range displayOrder {
		emit(c)
	}
	for _, t := range thresholds {
		emit(t.Label)
	}
	emit(OutOfRange)

	return out, nil
}

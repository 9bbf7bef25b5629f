// Package tabulate reshapes long-form survey observations into wide
// analysis-ready tables, computes derived ratio metrics, and buckets ratios
// into ordered categories for summary reporting.
package tabulate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/acs-cli/internal/model"
)

// Normalize pivots long-form observations into one WideRecord per distinct
// geography. columns maps each requested variable code to its semantic column
// name; every code in the mapping must appear exactly once per geography.
//
// Output order follows the first appearance of each geography in obs. A
// duplicate (geography, variable) pair or a geography missing a requested
// code fails with a NormalizationError naming the offending keys; a gap is
// never papered over with a fabricated null.
func Normalize(obs []model.Observation, columns map[string]string) ([]model.WideRecord, error) {
	if len(columns) == 0 {
		return nil, eris.New("tabulate: no variable columns requested")
	}

	type group struct {
		seen     map[string]bool
		record   model.WideRecord
		position int
	}

	groups := make(map[string]*group)
	var order []string

	for _, o := range obs {
		name, requested := columns[o.VariableCode]
		if !requested {
			// Extra variables in the response (e.g., NAME) are ignored.
			continue
		}

		g, ok := groups[o.GeographyID]
		if !ok {
			g = &group{
				seen: make(map[string]bool, len(columns)),
				record: model.WideRecord{
					GeographyID: o.GeographyID,
					Columns:     make(map[string]float64, len(columns)),
				},
				position: len(order),
			}
			groups[o.GeographyID] = g
			order = append(order, o.GeographyID)
		}

		if g.seen[o.VariableCode] {
			return nil, model.NewNormalizationError(o.GeographyID, o.VariableCode,
				eris.New("duplicate variable for geography"))
		}
		g.seen[o.VariableCode] = true
		g.record.Columns[name] = o.Estimate

		// Geometry arrives on at most one observation per geography; attach once.
		if o.Geometry != nil && g.record.Geometry == nil {
			g.record.Geometry = o.Geometry
		}
	}

	records := make([]model.WideRecord, 0, len(order))
	for _, geoID := range order {
		g := groups[geoID]
		for code := range columns {
			if !g.seen[code] {
				return nil, model.NewNormalizationError(geoID, code,
					eris.New("missing requested variable for geography"))
			}
		}
		records = append(records, g.record)
	}

	return records, nil
}

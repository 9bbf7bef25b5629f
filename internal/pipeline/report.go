package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/acs-cli/internal/model"
)

// FormatReport renders a human-readable run report: per-dimension record
// counts followed by the category summary table.
func FormatReport(spec *Spec, records []model.TaggedRecord, summaries []model.CategorySummary) string {
	pr := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "# Tabulation Report: %s\n", spec.Dataset)
	pr.Fprintf(&b, "Ratio: %s = %s / %s (zero denominator: %s)\n\n",
		spec.Ratio.Column, spec.Ratio.Numerator, spec.Ratio.Denominator, spec.Ratio.ZeroDenominator)

	b.WriteString("## Dimensions\n")
	counts := make(map[string]int, len(spec.Dimensions))
	for _, r := range records {
		counts[r.Dimension]++
	}
	for _, d := range spec.Dimensions {
		pr.Fprintf(&b, "- %s: %d records\n", d.Value, counts[d.Value])
	}
	pr.Fprintf(&b, "\nTotal: %d records\n\n", len(records))

	b.WriteString("## Summary\n")
	if len(summaries) == 0 {
		b.WriteString("No records classified.\n")
		return b.String()
	}
	for _, s := range summaries {
		pr.Fprintf(&b, "- %s: %d (%.1f%%)\n", s.Category, s.Count, s.Percentage)
	}

	return b.String()
}

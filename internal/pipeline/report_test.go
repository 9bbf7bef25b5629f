package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acs-cli/internal/model"
)

func TestFormatReport(t *testing.T) {
	s := validSpec()
	require.NoError(t, s.Validate())

	records := []model.TaggedRecord{
		{DerivedRecord: model.DerivedRecord{Ratio: 0.2}, Dimension: "2019"},
		{DerivedRecord: model.DerivedRecord{Ratio: 0.3}, Dimension: "2019"},
		{DerivedRecord: model.DerivedRecord{Ratio: 0.6}, Dimension: "2022"},
	}
	summaries := []model.CategorySummary{
		{Category: "Less than 25%", Count: 1, Percentage: 100.0 / 3},
		{Category: "25% to 50%", Count: 1, Percentage: 100.0 / 3},
		{Category: "More than 50%", Count: 1, Percentage: 100.0 / 3},
	}

	report := FormatReport(s, records, summaries)

	assert.Contains(t, report, "# Tabulation Report: acs/acs5")
	assert.Contains(t, report, "burden_share = severely_burdened / renter_households")
	assert.Contains(t, report, "- 2019: 2 records")
	assert.Contains(t, report, "- 2022: 1 records")
	assert.Contains(t, report, "Total: 3 records")
	assert.Contains(t, report, "- More than 50%: 1 (33.3%)")
}

func TestFormatReport_NoSummaries(t *testing.T) {
	s := validSpec()
	require.NoError(t, s.Validate())

	report := FormatReport(s, nil, nil)
	assert.Contains(t, report, "No records classified.")
	assert.Contains(t, report, "Total: 0 records")
}

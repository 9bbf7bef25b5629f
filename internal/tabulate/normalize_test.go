package tabulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/acs-cli/internal/model"
)

var testColumns = map[string]string{
	"B25070_001E": "renter_households",
	"B25070_010E": "severely_burdened",
}

func obs(geo, code string, est float64) model.Observation {
	return model.Observation{GeographyID: geo, VariableCode: code, Estimate: est}
}

func TestNormalize_OneRecordPerGeography(t *testing.T) {
	input := []model.Observation{
		obs("41051010100", "B25070_001E", 614),
		obs("41051010100", "B25070_010E", 126),
		obs("41051010200", "B25070_001E", 778),
		obs("41051010200", "B25070_010E", 92),
		obs("41051010300", "B25070_001E", 403),
		obs("41051010300", "B25070_010E", 51),
	}

	records, err := Normalize(input, testColumns)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// One record per distinct geography, no duplicates, no drops.
	seen := make(map[string]bool)
	for _, r := range records {
		assert.False(t, seen[r.GeographyID])
		seen[r.GeographyID] = true
	}

	assert.Equal(t, "41051010100", records[0].GeographyID)
	assert.Equal(t, float64(614), records[0].Columns["renter_households"])
	assert.Equal(t, float64(126), records[0].Columns["severely_burdened"])
}

func TestNormalize_OutputFollowsInputOrder(t *testing.T) {
	input := []model.Observation{
		obs("C", "B25070_001E", 1),
		obs("A", "B25070_001E", 2),
		obs("C", "B25070_010E", 3),
		obs("B", "B25070_001E", 4),
		obs("A", "B25070_010E", 5),
		obs("B", "B25070_010E", 6),
	}

	records, err := Normalize(input, testColumns)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "C", records[0].GeographyID)
	assert.Equal(t, "A", records[1].GeographyID)
	assert.Equal(t, "B", records[2].GeographyID)
}

func TestNormalize_DuplicateVariable(t *testing.T) {
	input := []model.Observation{
		obs("41051010100", "B25070_001E", 614),
		obs("41051010100", "B25070_001E", 615),
	}

	_, err := Normalize(input, testColumns)
	require.Error(t, err)
	assert.True(t, model.IsNormalization(err))
	assert.Contains(t, err.Error(), "41051010100")
	assert.Contains(t, err.Error(), "B25070_001E")
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNormalize_MissingVariable(t *testing.T) {
	input := []model.Observation{
		obs("41051010100", "B25070_001E", 614),
		obs("41051010100", "B25070_010E", 126),
		obs("41051010200", "B25070_001E", 778),
	}

	_, err := Normalize(input, testColumns)
	require.Error(t, err)
	assert.True(t, model.IsNormalization(err))
	assert.Contains(t, err.Error(), "41051010200")
	assert.Contains(t, err.Error(), "B25070_010E")
	assert.Contains(t, err.Error(), "missing")
}

func TestNormalize_IgnoresUnrequestedVariables(t *testing.T) {
	input := []model.Observation{
		obs("41051010100", "B25070_001E", 614),
		obs("41051010100", "B25070_010E", 126),
		obs("41051010100", "B01001_001E", 2400), // not requested
	}

	records, err := Normalize(input, testColumns)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Columns, 2)
}

func TestNormalize_GeometryAttachedOnce(t *testing.T) {
	poly := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	input := []model.Observation{
		{GeographyID: "41051010100", VariableCode: "B25070_001E", Estimate: 614, Geometry: poly},
		obs("41051010100", "B25070_010E", 126),
	}

	records, err := Normalize(input, testColumns)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, geom.T(poly), records[0].Geometry)
}

func TestNormalize_EmptyColumns(t *testing.T) {
	_, err := Normalize(nil, nil)
	require.Error(t, err)
}

func TestNormalize_NoObservations(t *testing.T) {
	records, err := Normalize(nil, testColumns)
	require.NoError(t, err)
	assert.Empty(t, records)
}

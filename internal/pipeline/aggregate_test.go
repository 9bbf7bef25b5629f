package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acs-cli/internal/model"
)

func dims(values ...string) []Dimension {
	out := make([]Dimension, len(values))
	for i, v := range values {
		out[i] = Dimension{Value: v, Year: 2019 + i, GeographyFor: "tract:*"}
	}
	return out
}

func kRecords(dim Dimension, k int) []model.DerivedRecord {
	out := make([]model.DerivedRecord, k)
	for i := range out {
		out[i] = model.DerivedRecord{
			WideRecord: model.WideRecord{GeographyID: dim.Value + "-geo"},
			Ratio:      0.1,
		}
	}
	return out
}

func TestAggregate_TwoDimensionsTwoK(t *testing.T) {
	const k = 3
	tagged, err := Aggregate(context.Background(), dims("2019", "2022"), 1,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			return kRecords(dim, k), nil
		})
	require.NoError(t, err)
	require.Len(t, tagged, 2*k)

	// Every record's tag matches its originating dimension value.
	for i, r := range tagged {
		if i < k {
			assert.Equal(t, "2019", r.Dimension)
			assert.Equal(t, "2019-geo", r.GeographyID)
		} else {
			assert.Equal(t, "2022", r.Dimension)
			assert.Equal(t, "2022-geo", r.GeographyID)
		}
	}
}

func TestAggregate_OutputOrderIndependentOfCompletionOrder(t *testing.T) {
	// With concurrency 4, fast later dimensions finish before slow early
	// ones; tagging must still follow submission order.
	started := make(chan struct{})
	tagged, err := Aggregate(context.Background(), dims("a", "b", "c", "d"), 4,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			if dim.Value == "a" {
				// Wait until every other dimension has been submitted.
				for range 3 {
					<-started
				}
			} else {
				started <- struct{}{}
			}
			return kRecords(dim, 1), nil
		})
	require.NoError(t, err)
	require.Len(t, tagged, 4)
	assert.Equal(t, "a", tagged[0].Dimension)
	assert.Equal(t, "b", tagged[1].Dimension)
	assert.Equal(t, "c", tagged[2].Dimension)
	assert.Equal(t, "d", tagged[3].Dimension)
}

func TestAggregate_FailureNamesDimension(t *testing.T) {
	_, err := Aggregate(context.Background(), dims("2019", "2022"), 1,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			if dim.Value == "2022" {
				return nil, eris.New("boom")
			}
			return kRecords(dim, 2), nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 2022")
	assert.Contains(t, err.Error(), "boom")
}

func TestAggregate_NoPartialResultsOnFailure(t *testing.T) {
	tagged, err := Aggregate(context.Background(), dims("2019", "2022"), 1,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			if dim.Value == "2019" {
				return nil, eris.New("boom")
			}
			return kRecords(dim, 2), nil
		})
	require.Error(t, err)
	assert.Nil(t, tagged)
}

func TestAggregate_FailFastCancelsInFlight(t *testing.T) {
	var cancelled atomic.Bool
	_, err := Aggregate(context.Background(), dims("fail", "slow"), 2,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			if dim.Value == "fail" {
				return nil, eris.New("boom")
			}
			<-ctx.Done()
			cancelled.Store(true)
			return nil, ctx.Err()
		})
	require.Error(t, err)
	assert.True(t, cancelled.Load(), "in-flight dimension should observe cancellation")
}

func TestAggregate_ZeroConcurrencyRunsSequentially(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	_, err := Aggregate(context.Background(), dims("a", "b", "c"), 0,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			cur := inFlight.Add(1)
			if cur > maxInFlight.Load() {
				maxInFlight.Store(cur)
			}
			defer inFlight.Add(-1)
			return kRecords(dim, 1), nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(1))
}

func TestAggregate_EmptyDimensions(t *testing.T) {
	tagged, err := Aggregate(context.Background(), nil, 1,
		func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
			t.Fatal("must not be called")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Empty(t, tagged)
}

package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/acs-cli/internal/model"
)

// dimensionFunc runs the per-dimension pipeline (resolve, fetch, normalize,
// derive) for one dimension value. Passes share no state.
type dimensionFunc func(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error)

// Aggregate runs fn independently for every dimension value and concatenates
// the tagged results. Output groups follow the input dimension order and each
// record's tag is the dimension that produced it, regardless of completion
// order: results are slotted by submission index, then flattened.
//
// concurrency bounds the number of in-flight passes; 1 reproduces the
// sequential reference behavior. The first failing dimension cancels the
// rest and fails the whole run with an error naming the dimension value;
// partial results are never returned implicitly.
func Aggregate(ctx context.Context, dims []Dimension, concurrency int, fn dimensionFunc) ([]model.TaggedRecord, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([][]model.DerivedRecord, len(dims))

	for i, dim := range dims {
		g.Go(func() error {
			records, err := fn(gctx, dim)
			if err != nil {
				return eris.Wrapf(err, "aggregate: dimension %s", dim.Value)
			}
			results[i] = records
			zap.L().Debug("aggregate: dimension complete",
				zap.String("dimension", dim.Value),
				zap.Int("records", len(records)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.TaggedRecord
	for i, dim := range dims {
		for _, r := range results[i] {
			out = append(out, model.TaggedRecord{DerivedRecord: r, Dimension: dim.Value})
		}
	}

	return out, nil
}

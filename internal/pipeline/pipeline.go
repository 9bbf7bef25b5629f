package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acs-cli/internal/catalog"
	"github.com/sells-group/acs-cli/internal/model"
	"github.com/sells-group/acs-cli/internal/tabulate"
	"github.com/sells-group/acs-cli/pkg/census"
)

// CatalogSource provides variable catalogs, typically the sqlite-backed
// catalog cache.
type CatalogSource interface {
	Entries(ctx context.Context, year int, dataset string) ([]model.CatalogEntry, error)
}

// Pipeline runs a validated spec against the Census API.
type Pipeline struct {
	spec    *Spec
	client  census.Client
	catalog CatalogSource
}

// New creates a Pipeline. The spec must already be validated (LoadSpec does
// this).
func New(spec *Spec, client census.Client, cat CatalogSource) *Pipeline {
	return &Pipeline{spec: spec, client: client, catalog: cat}
}

// Run executes the fetch, normalize, derive cycle for every dimension value
// and returns the concatenated tagged records.
func (p *Pipeline) Run(ctx context.Context) ([]model.TaggedRecord, error) {
	log := zap.L().With(zap.String("dataset", p.spec.Dataset))
	log.Info("pipeline: starting run",
		zap.Int("dimensions", len(p.spec.Dimensions)),
		zap.Int("concurrency", p.spec.Concurrency),
		zap.String("policy", string(p.spec.Policy())),
	)

	records, err := Aggregate(ctx, p.spec.Dimensions, p.spec.Concurrency, p.runDimension)
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: run complete", zap.Int("records", len(records)))
	return records, nil
}

// runDimension is one independent pass: resolve variable codes against the
// catalog, fetch observations, pivot wide, derive the ratio.
func (p *Pipeline) runDimension(ctx context.Context, dim Dimension) ([]model.DerivedRecord, error) {
	codes, err := p.resolveVariables(ctx, dim.Year)
	if err != nil {
		return nil, err
	}
	columns := p.spec.columnsByCode(codes)

	obs, err := p.client.FetchObservations(ctx, census.Query{
		Year:            dim.Year,
		Dataset:         p.spec.Dataset,
		VariableCodes:   codes,
		GeographyFor:    dim.GeographyFor,
		GeographyIn:     dim.GeographyIn,
		IncludeGeometry: dim.IncludeGeometry,
	})
	if err != nil {
		return nil, err
	}

	wide, err := tabulate.Normalize(obs, columns)
	if err != nil {
		return nil, err
	}

	derived, err := tabulate.Derive(wide, p.spec.Ratio.Numerator, p.spec.Ratio.Denominator, p.spec.Policy())
	if err != nil {
		return nil, err
	}

	zap.L().Debug("pipeline: dimension derived",
		zap.String("dimension", dim.Value),
		zap.Int("observations", len(obs)),
		zap.Int("geographies", len(wide)),
		zap.Int("derived", len(derived)),
	)
	return derived, nil
}

// resolveVariables maps every variable spec to exactly one catalog code for
// the given year: explicit codes are verified to exist, predicates are
// resolved through the catalog filter. The result is index-aligned with the
// spec's variable list.
func (p *Pipeline) resolveVariables(ctx context.Context, year int) ([]string, error) {
	entries, err := p.catalog.Entries(ctx, year, p.spec.Dataset)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.Code] = true
	}

	codes := make([]string, len(p.spec.Variables))
	for i, v := range p.spec.Variables {
		if v.Code != "" {
			if !known[v.Code] {
				return nil, model.NewConfigurationError(v.Column,
					eris.Errorf("code %s not in %d %s catalog", v.Code, year, p.spec.Dataset))
			}
			codes[i] = v.Code
			continue
		}
		selected, err := catalog.Select(entries, []catalog.Predicate{v.predicate()})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: resolve column %s", v.Column)
		}
		codes[i] = selected[0]
	}

	return codes, nil
}

// Summarize buckets the run's ratios into the spec's thresholds and
// tabulates counts and percentages ordered for display.
func (p *Pipeline) Summarize(records []model.TaggedRecord) ([]model.CategorySummary, error) {
	derived := make([]model.DerivedRecord, len(records))
	for i, r := range records {
		derived[i] = r.DerivedRecord
	}
	return tabulate.Summarize(derived, p.spec.Thresholds, p.spec.DisplayOrder)
}

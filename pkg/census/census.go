// Package census is a client for the Census Bureau data API
// (api.census.gov): variable catalogs and aggregated survey estimates.
package census

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/acs-cli/internal/model"
)

// Query describes one observations request: a dataset vintage, the variable
// codes wanted, and the geography clause.
type Query struct {
	Year    int    // dataset vintage, e.g. 2022
	Dataset string // dataset path, e.g. "acs/acs5"

	// VariableCodes are estimate codes (e.g. B25070_001E). The client also
	// requests the paired margin-of-error column for each.
	VariableCodes []string

	// GeographyFor and GeographyIn are the API's for/in clauses, e.g.
	// "tract:*" within "state:41 county:051".
	GeographyFor string
	GeographyIn  string

	// IncludeGeometry asks the client to attach boundary polygons from its
	// BoundaryProvider, when one is configured.
	IncludeGeometry bool
}

// Client fetches variable catalogs and observations.
type Client interface {
	FetchCatalog(ctx context.Context, year int, dataset string) ([]model.CatalogEntry, error)
	FetchObservations(ctx context.Context, q Query) ([]model.Observation, error)
}

// BoundaryProvider resolves a geography id to its boundary polygon. Geometry
// is opaque to the pipeline and passed through unchanged.
type BoundaryProvider interface {
	Boundary(geographyID string) geom.T
}

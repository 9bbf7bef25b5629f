// Package model defines the tables that flow through the tabulation pipeline
// and the error taxonomy every stage reports with.
package model

import (
	"github.com/twpayne/go-geom"
)

// CatalogEntry is one variable definition from a published ACS dataset.
// Entries are immutable historical facts keyed by (Year, Dataset, Code).
type CatalogEntry struct {
	Code    string `json:"code"`
	Concept string `json:"concept"`
	Label   string `json:"label"`
	Year    int    `json:"year"`
	Dataset string `json:"dataset"`
}

// Observation is one (geography, variable) estimate from a single query.
// Within one query result the (GeographyID, VariableCode) pair is unique.
type Observation struct {
	GeographyID   string  `json:"geography_id"`
	VariableCode  string  `json:"variable_code"`
	Estimate      float64 `json:"estimate"`
	MarginOfError float64 `json:"margin_of_error"`
	Geometry      geom.T  `json:"-"`
}

// WideRecord is one geography with its requested variables pivoted to named
// numeric columns. Geometry, when present, is attached once per geography and
// passed through opaquely.
type WideRecord struct {
	GeographyID string             `json:"geography_id"`
	Columns     map[string]float64 `json:"columns"`
	Geometry    geom.T             `json:"-"`
}

// Column returns the named column value and whether it exists.
func (r WideRecord) Column(name string) (float64, bool) {
	v, ok := r.Columns[name]
	return v, ok
}

// Clone returns a deep copy of the record's columns. Geometry is shared; it
// is never mutated downstream.
func (r WideRecord) Clone() WideRecord {
	cols := make(map[string]float64, len(r.Columns))
	for k, v := range r.Columns {
		cols[k] = v
	}
	return WideRecord{GeographyID: r.GeographyID, Columns: cols, Geometry: r.Geometry}
}

// DerivedRecord is a WideRecord plus a computed ratio column. The ratio is
// always defined: either a value, or explicitly marked undefined by the
// configured zero-denominator policy.
type DerivedRecord struct {
	WideRecord
	Ratio          float64 `json:"ratio"`
	RatioUndefined bool    `json:"ratio_undefined,omitempty"`
}

// TaggedRecord is a DerivedRecord tagged with the dimension value (year,
// county, ...) whose pipeline pass produced it. Created once, never mutated.
type TaggedRecord struct {
	DerivedRecord
	Dimension string `json:"dimension"`
}

// CategorySummary is one row of a summarization: a category with its record
// count and share of the classified total.
type CategorySummary struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

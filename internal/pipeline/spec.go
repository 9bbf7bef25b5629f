// Package pipeline orchestrates a tabulation run: it resolves variable
// codes, fans out fetch/normalize/derive passes over dimension values, and
// summarizes the tagged results.
package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/acs-cli/internal/catalog"
	"github.com/sells-group/acs-cli/internal/model"
	"github.com/sells-group/acs-cli/internal/tabulate"
)

// VariableSpec names one output column and identifies the catalog variable
// that fills it, either by explicit code or by a concept/label predicate.
// Exactly one of the two forms must be used.
type VariableSpec struct {
	Column       string `yaml:"column"`
	Code         string `yaml:"code,omitempty"`
	Concept      string `yaml:"concept,omitempty"`
	Label        string `yaml:"label,omitempty"`
	LabelPattern string `yaml:"label_pattern,omitempty"`
}

func (v VariableSpec) hasPredicate() bool {
	return v.Concept != "" || v.Label != "" || v.LabelPattern != ""
}

func (v VariableSpec) predicate() catalog.Predicate {
	return catalog.Predicate{Concept: v.Concept, Label: v.Label, LabelPattern: v.LabelPattern}
}

// RatioSpec names the derived column and the two variable columns it divides.
// ZeroDenominator selects the policy for records whose denominator is zero;
// empty means treat_as_zero.
type RatioSpec struct {
	Column          string `yaml:"column"`
	Numerator       string `yaml:"numerator"`
	Denominator     string `yaml:"denominator"`
	ZeroDenominator string `yaml:"zero_denominator,omitempty"`
}

// Dimension is one independent pass of the pipeline: a tag value plus the
// year and geography scope to fetch for it.
type Dimension struct {
	Value           string `yaml:"value"`
	Year            int    `yaml:"year"`
	GeographyFor    string `yaml:"geography_for"`
	GeographyIn     string `yaml:"geography_in,omitempty"`
	IncludeGeometry bool   `yaml:"include_geometry,omitempty"`
}

// Spec is a complete tabulation run configuration, usually loaded from a
// yaml file. Validate must pass before the spec is run.
type Spec struct {
	Dataset      string               `yaml:"dataset"`
	Variables    []VariableSpec       `yaml:"variables"`
	Ratio        RatioSpec            `yaml:"ratio"`
	Dimensions   []Dimension          `yaml:"dimensions"`
	Thresholds   []tabulate.Threshold `yaml:"thresholds"`
	DisplayOrder []string             `yaml:"display_order,omitempty"`
	Concurrency  int                  `yaml:"concurrency,omitempty"`

	policy tabulate.ZeroDenominatorPolicy
}

// LoadSpec reads and validates a yaml spec file.
func LoadSpec(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read spec %s", path)
	}

	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse spec %s", path)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the spec for completeness and internal consistency and
// resolves the zero-denominator policy. Every failure is a ConfigurationError
// naming the offending field.
func (s *Spec) Validate() error {
	if s.Dataset == "" {
		return model.NewConfigurationError("dataset", eris.New("dataset is required"))
	}

	if len(s.Variables) == 0 {
		return model.NewConfigurationError("variables", eris.New("at least one variable is required"))
	}
	columns := make(map[string]bool, len(s.Variables))
	for i, v := range s.Variables {
		if v.Column == "" {
			return model.NewConfigurationError("variables",
				eris.Errorf("variable %d has no column name", i))
		}
		if columns[v.Column] {
			return model.NewConfigurationError(v.Column, eris.New("duplicate column"))
		}
		columns[v.Column] = true

		switch {
		case v.Code == "" && !v.hasPredicate():
			return model.NewConfigurationError(v.Column,
				eris.New("needs a code or a concept/label predicate"))
		case v.Code != "" && v.hasPredicate():
			return model.NewConfigurationError(v.Column,
				eris.New("has both a code and a predicate"))
		}
	}

	if s.Ratio.Column == "" {
		return model.NewConfigurationError("ratio.column", eris.New("ratio.column is required"))
	}
	if !columns[s.Ratio.Numerator] {
		return model.NewConfigurationError("ratio.numerator",
			eris.Errorf("%q is not a declared variable column", s.Ratio.Numerator))
	}
	if !columns[s.Ratio.Denominator] {
		return model.NewConfigurationError("ratio.denominator",
			eris.Errorf("%q is not a declared variable column", s.Ratio.Denominator))
	}

	raw := s.Ratio.ZeroDenominator
	if raw == "" {
		raw = string(tabulate.TreatAsZero)
	}
	policy, err := tabulate.ParsePolicy(raw)
	if err != nil {
		return err
	}
	s.policy = policy

	if len(s.Dimensions) == 0 {
		return model.NewConfigurationError("dimensions", eris.New("at least one dimension is required"))
	}
	values := make(map[string]bool, len(s.Dimensions))
	for i, d := range s.Dimensions {
		if d.Value == "" {
			return model.NewConfigurationError("dimensions",
				eris.Errorf("dimension %d has no value", i))
		}
		if values[d.Value] {
			return model.NewConfigurationError(d.Value, eris.New("duplicate dimension value"))
		}
		values[d.Value] = true
		if d.Year == 0 {
			return model.NewConfigurationError(d.Value, eris.New("dimension has no year"))
		}
		if d.GeographyFor == "" {
			return model.NewConfigurationError(d.Value, eris.New("dimension has no geography_for"))
		}
	}

	if err := tabulate.ValidateThresholds(s.Thresholds); err != nil {
		return err
	}

	if s.Concurrency < 0 {
		return model.NewConfigurationError("concurrency", eris.New("negative concurrency"))
	}

	return nil
}

// Policy returns the zero-denominator policy resolved by Validate.
func (s *Spec) Policy() tabulate.ZeroDenominatorPolicy {
	if s.policy == "" {
		return tabulate.TreatAsZero
	}
	return s.policy
}

// columnsByCode maps resolved variable codes back to their output column
// names. codes is index-aligned with s.Variables.
func (s *Spec) columnsByCode(codes []string) map[string]string {
	out := make(map[string]string, len(codes))
	for i, code := range codes {
		out[code] = s.Variables[i].Column
	}
	return out
}

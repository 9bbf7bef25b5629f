// Package catalog selects variable codes from an ACS variable catalog and
// caches fetched catalogs indefinitely.
package catalog

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acs-cli/internal/model"
)

// Predicate is a conjunction of match conditions against a catalog entry.
// Empty fields are not applied. LabelPattern, when set, is a Go regexp
// matched against the entry label.
type Predicate struct {
	Concept      string `yaml:"concept,omitempty"`
	Label        string `yaml:"label,omitempty"`
	LabelPattern string `yaml:"label_pattern,omitempty"`
}

// String renders the predicate for error attribution.
func (p Predicate) String() string {
	var parts []string
	if p.Concept != "" {
		parts = append(parts, "concept="+p.Concept)
	}
	if p.Label != "" {
		parts = append(parts, "label="+p.Label)
	}
	if p.LabelPattern != "" {
		parts = append(parts, "label_pattern="+p.LabelPattern)
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}

func (p Predicate) compile() (*regexp.Regexp, error) {
	if p.LabelPattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(p.LabelPattern)
	if err != nil {
		return nil, model.NewConfigurationError(p.String(), eris.Wrap(err, "invalid label pattern"))
	}
	return re, nil
}

func (p Predicate) matches(e model.CatalogEntry, re *regexp.Regexp) bool {
	if p.Concept != "" && e.Concept != p.Concept {
		return false
	}
	if p.Label != "" && e.Label != p.Label {
		return false
	}
	if re != nil && !re.MatchString(e.Label) {
		return false
	}
	return true
}

// Select resolves each predicate to exactly one variable code, returned in
// predicate-declaration order. A predicate matching zero entries or more than
// one entry fails with a ConfigurationError: an ambiguous selection is
// surfaced, never resolved by picking the first match. Pure; the catalog is
// read-only.
func Select(entries []model.CatalogEntry, predicates []Predicate) ([]string, error) {
	if len(predicates) == 0 {
		return nil, model.NewConfigurationError("predicates", eris.New("no predicates given"))
	}

	codes := make([]string, 0, len(predicates))
	for _, p := range predicates {
		re, err := p.compile()
		if err != nil {
			return nil, err
		}

		var matched []string
		for _, e := range entries {
			if p.matches(e, re) {
				matched = append(matched, e.Code)
			}
		}

		switch len(matched) {
		case 0:
			return nil, model.NewConfigurationError(p.String(), eris.New("matches no catalog entry"))
		case 1:
			codes = append(codes, matched[0])
		default:
			return nil, model.NewConfigurationError(p.String(),
				eris.Errorf("ambiguous: matches %d catalog entries (%s)", len(matched), strings.Join(matched, ", ")))
		}
	}

	return codes, nil
}

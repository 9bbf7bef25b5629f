package model

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid or ambiguous pipeline configuration:
// a variable predicate matching zero or multiple catalog entries, an invalid
// threshold list, an unknown policy.
type ConfigurationError struct {
	Field string // the spec field or predicate that failed
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a configuration failure on field.
func NewConfigurationError(field string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: err}
}

// FetchError reports an external collaborator failure: network, invalid
// parameter combination, authentication.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a fetch failure for url.
func NewFetchError(url string, err error) *FetchError {
	return &FetchError{URL: url, Err: err}
}

// NormalizationError reports a duplicate or missing variable for a geography
// during the long-to-wide pivot.
type NormalizationError struct {
	GeographyID  string
	VariableCode string
	Err          error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize: geography %s variable %s: %v", e.GeographyID, e.VariableCode, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// NewNormalizationError wraps err with the offending geography and variable.
func NewNormalizationError(geoID, code string, err error) *NormalizationError {
	return &NormalizationError{GeographyID: geoID, VariableCode: code, Err: err}
}

// ComputationError reports a derived-metric failure: a referenced column is
// absent from a record.
type ComputationError struct {
	GeographyID string
	Column      string
	Err         error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("compute: geography %s column %s: %v", e.GeographyID, e.Column, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// NewComputationError wraps err with the offending geography and column.
func NewComputationError(geoID, column string, err error) *ComputationError {
	return &ComputationError{GeographyID: geoID, Column: column, Err: err}
}

// IsConfiguration reports whether any error in the chain is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsFetch reports whether any error in the chain is a FetchError.
func IsFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsNormalization reports whether any error in the chain is a NormalizationError.
func IsNormalization(err error) bool {
	var ne *NormalizationError
	return errors.As(err, &ne)
}

// IsComputation reports whether any error in the chain is a ComputationError.
func IsComputation(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}

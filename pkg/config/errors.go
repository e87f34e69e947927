package config

import (
	"errors"
	"fmt"
)

var (
	// ErrFlagNotFound indicates a feature flag was not found in the registry.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrBackendNotFound indicates an LLM backend was not found in the registry.
	ErrBackendNotFound = errors.New("llm backend not found")

	// ErrRuleNotFound indicates a clarification rule was not found.
	ErrRuleNotFound = errors.New("clarification rule not found")

	// ErrDisambiguationNotFound indicates no disambiguation entry matches a trigger token.
	ErrDisambiguationNotFound = errors.New("disambiguation entry not found")

	// ErrDeviceRuleNotFound indicates no device disambiguation rule matches a device kind.
	ErrDeviceRuleNotFound = errors.New("device disambiguation rule not found")

	// ErrDataSourceNotFound indicates no data source is configured for a category.
	ErrDataSourceNotFound = errors.New("data source not found")

	// ErrRequiredFlagDisable is returned when a caller attempts to disable a
	// flag marked Required: FeatureFlag.Required implies Enabled stays true
	// across any sequence of toggles.
	ErrRequiredFlagDisable = errors.New("cannot disable a required feature flag")
)

// LoadError wraps a failed fetch of a configuration kind from the admin
// HTTP surface.
type LoadError struct {
	Kind string // e.g. "features", "llm_backends"
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load config kind %q: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError creates a new LoadError.
func NewLoadError(kind string, err error) *LoadError {
	return &LoadError{Kind: kind, Err: err}
}

// ValidationError wraps a rejected admin mutation with field-level context.
type ValidationError struct {
	Entity string
	ID     string
	Field  string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q: field %q: %v", e.Entity, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Entity, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a new ValidationError.
func NewValidationError(entity, id, field string, err error) *ValidationError {
	return &ValidationError{Entity: entity, ID: id, Field: field, Err: err}
}

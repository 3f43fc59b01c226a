// Package config defines the contract shared by model configurations and
// their serialization to flat maps, JSON and YAML files.
//
// A configuration is an immutable value record. It round-trips through a
// flat key-value map with every field present plus the "model_type" tag that
// identifies the architecture.
package config

import (
	"errors"
	"fmt"
)

// ModelTypeKey is the map key carrying the architecture tag.
const ModelTypeKey = "model_type"

// ErrInvalidConfig is returned when a configuration field violates its domain.
var ErrInvalidConfig = errors.New("invalid config")

// Config is implemented by every architecture's configuration record.
type Config interface {
	// ModelType returns the registry tag, e.g. "wavenet".
	ModelType() string
	// Validate reports the first field outside its domain as a *FieldError.
	Validate() error
}

// FieldError describes one invalid configuration field.
type FieldError struct {
	Field  string // Serialized field name, e.g. "hidden_size"
	Value  any    // Offending value
	Reason string // Human readable constraint
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s=%v: %s", ErrInvalidConfig, e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *FieldError) Unwrap() error {
	return ErrInvalidConfig
}

// Positive returns a *FieldError unless v > 0.
func Positive(field string, v int) error {
	if v <= 0 {
		return &FieldError{Field: field, Value: v, Reason: "must be positive"}
	}
	return nil
}

// Probability returns a *FieldError unless 0 <= v <= 1.
func Probability(field string, v float32) error {
	if !(v >= 0 && v <= 1) {
		return &FieldError{Field: field, Value: v, Reason: "must be in [0, 1]"}
	}
	return nil
}

// DropoutRate returns a *FieldError unless 0 <= v < 1.
func DropoutRate(field string, v float32) error {
	if !(v >= 0 && v < 1) {
		return &FieldError{Field: field, Value: v, Reason: "must be in [0, 1)"}
	}
	return nil
}

// Divisible returns a *FieldError unless v is a multiple of by.
func Divisible(field string, v, by int, byField string) error {
	if by <= 0 || v%by != 0 {
		return &FieldError{Field: field, Value: v, Reason: fmt.Sprintf("must be divisible by %s (%d)", byField, by)}
	}
	return nil
}

// Horizon validates a forecast horizon.
func Horizon(h int) error {
	return Positive("predict_sequence_length", h)
}

package nn

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a layer receives an input whose width
// differs from the width it was bound to.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError describes a width mismatch on one layer.
type ShapeError struct {
	Layer string // Layer kind, e.g. "Dense"
	Want  int    // Bound width
	Got   int    // Observed width
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %v: bound to %d input features, got %d", e.Layer, ErrShapeMismatch, e.Want, e.Got)
}

// Unwrap lets errors.Is match ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// Package nn implements the primitive layers the forecasting models are
// assembled from.
//
// This package provides:
//   - Layer interface: parameters and state-dict loading for every component
//   - Parameter: named weight tensors, flattened into state dicts
//   - Dense, Conv1D: projections whose input width is bound lazily
//   - LayerNorm, BatchNorm: normalization over the feature axis
//   - Dropout, MaxPool1D and the activation functions
//
// Weighted layers follow a two-phase lifecycle. They are declared with their
// output width only; the input width is bound on the first Forward call (or
// on LoadStateDict) and never changes afterwards. A later call with a
// different width fails with ErrShapeMismatch.
package nn

import (
	"math/rand/v2"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Layer is the interface shared by every component that owns weights.
//
// Parameters returns only weights that exist, so an unbound lazy layer
// reports none. LoadStateDict binds lazy layers from the stored shapes.
type Layer interface {
	Parameters() []*Parameter
	LoadStateDict(stateDict map[string]*tensor.Tensor) error
}

// CallOptions carries per-call state through a forward pass.
//
// Rand is consumed by dropout and by sampling layers. It is owned by a single
// forward call and must not be shared between concurrent calls.
type CallOptions struct {
	Training bool
	Rand     *rand.Rand
}

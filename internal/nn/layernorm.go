package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// LayerNorm normalizes the last axis of its input.
//
// Formula: Y = gamma * (X - mean(X)) / sqrt(var(X) + eps) + beta
//
// Where mean and variance are computed along the last dimension, gamma is
// initialized to ones and beta to zeros.
//
// Example:
//
//	norm := nn.NewLayerNorm(64, 1e-3)
//	y, err := norm.Forward(h) // [..., 64] -> [..., 64]
type LayerNorm struct {
	Gamma   *Parameter // learnable scale [features]
	Beta    *Parameter // learnable shift [features]
	Epsilon float32    // numerical stability constant
}

// NewLayerNorm creates a LayerNorm over a feature axis of the given size.
func NewLayerNorm(features int, epsilon float32) *LayerNorm {
	return &LayerNorm{
		Gamma:   NewParameter("gamma", tensor.Ones(tensor.Shape{features})),
		Beta:    NewParameter("beta", tensor.Zeros(tensor.Shape{features})),
		Epsilon: epsilon,
	}
}

// Forward applies LayerNorm.
//
// Shapes:
//   - input: [..., features]
//   - output: [..., features]
func (l *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	features := l.Gamma.Tensor().NumElements()
	if x.Rank() == 0 {
		return nil, fmt.Errorf("LayerNorm.Forward: scalar input")
	}
	if got := x.Dim(-1); got != features {
		return nil, &ShapeError{Layer: "LayerNorm", Want: features, Got: got}
	}

	out := x.Clone()
	data := out.Data()
	gamma, beta := l.Gamma.Tensor().Data(), l.Beta.Tensor().Data()
	n := float32(features)
	for row := 0; row < len(data); row += features {
		v := data[row : row+features]
		var mean float32
		for _, e := range v {
			mean += e
		}
		mean /= n
		var variance float32
		for _, e := range v {
			d := e - mean
			variance += d * d
		}
		variance /= n
		inv := 1 / math32.Sqrt(variance+l.Epsilon)
		for i, e := range v {
			v[i] = gamma[i]*(e-mean)*inv + beta[i]
		}
	}
	return out, nil
}

// Parameters returns the learnable parameters (gamma and beta).
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Gamma, l.Beta}
}

// LoadStateDict loads gamma and beta.
func (l *LayerNorm) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	for _, p := range l.Parameters() {
		if err := loadInto(p, stateDict); err != nil {
			return err
		}
	}
	return nil
}

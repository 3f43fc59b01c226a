package layers

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// PositionalEncoding returns the fixed sinusoidal encoding [1, steps, dim].
//
//	PE(pos, 2i)   = sin(pos / 10000^(2i/d))
//	PE(pos, 2i+1) = cos(pos / 10000^(2i/d))
//
// The table is computed for any length, so there is no maximum sequence
// length to configure.
func PositionalEncoding(steps, dim int) *tensor.Tensor {
	pe := tensor.Zeros(tensor.Shape{1, steps, dim})
	data := pe.Data()
	for pos := 0; pos < steps; pos++ {
		for i := 0; i < dim; i += 2 {
			freq := math32.Pow(10000, -float32(i)/float32(dim))
			angle := float32(pos) * freq
			data[pos*dim+i] = math32.Sin(angle)
			if i+1 < dim {
				data[pos*dim+i+1] = math32.Cos(angle)
			}
		}
	}
	return pe
}

// DataEmbedding projects per-step feature vectors to the hidden width.
//
// Output = dropout(Dense(x) + PE), where the Dense token projection binds
// to the feature width of the first input and PE is the optional fixed
// sinusoidal position table.
//
// Example:
//
//	emb := layers.NewDataEmbedding(64, true, 0.1, init)
//	h, err := emb.Forward(x, opts) // [B, T, F] -> [B, T, 64]
type DataEmbedding struct {
	hidden     int
	positional bool
	token      *nn.Dense
	dropout    *nn.Dropout
}

// NewDataEmbedding creates a DataEmbedding.
func NewDataEmbedding(hidden int, positional bool, dropout float32, init *nn.Initializer) *DataEmbedding {
	return &DataEmbedding{
		hidden:     hidden,
		positional: positional,
		token:      nn.NewDense(hidden, nil, true, init),
		dropout:    nn.NewDropout(dropout),
	}
}

// Forward embeds x of shape [batch, time, features].
//
// Returns ErrShapeMismatch when the feature width differs from the width
// seen on the first call.
func (e *DataEmbedding) Forward(x *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("embedding: expected 3D input [batch, time, features], got shape %v", x.Shape())
	}
	h, err := e.token.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if e.positional {
		h = h.Add(PositionalEncoding(x.Dim(1), e.hidden))
	}
	return e.dropout.Forward(h, opts), nil
}

// InFeatures returns the bound feature width, or 0 before the first call.
func (e *DataEmbedding) InFeatures() int {
	return e.token.InFeatures()
}

// Parameters returns the token projection weights.
func (e *DataEmbedding) Parameters() []*nn.Parameter {
	return e.children().Parameters()
}

// LoadStateDict loads the token projection weights.
func (e *DataEmbedding) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return e.children().LoadStateDict(stateDict)
}

func (e *DataEmbedding) children() nn.Children {
	return nn.Children{{Name: "token", Layer: e.token}}
}

package nn

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Activation is an element-wise function applied after a projection.
// A nil Activation is the identity.
type Activation func(*tensor.Tensor) *tensor.Tensor

// Built-in activations.
var (
	ReLU    Activation = (*tensor.Tensor).ReLU
	Tanh    Activation = (*tensor.Tensor).Tanh
	Sigmoid Activation = (*tensor.Tensor).Sigmoid
	ELU     Activation = (*tensor.Tensor).ELU
	GELU    Activation = gelu
)

// gelu uses the tanh approximation.
func gelu(x *tensor.Tensor) *tensor.Tensor {
	const c = 0.7978845608 // sqrt(2/pi)
	return x.Map(func(v float32) float32 {
		return 0.5 * v * (1 + math32.Tanh(c*(v+0.044715*v*v*v)))
	})
}

// ActivationByName resolves a configuration string to an Activation.
// "" and "linear" resolve to nil.
func ActivationByName(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "", "linear":
		return nil, nil
	case "relu":
		return ReLU, nil
	case "tanh":
		return Tanh, nil
	case "sigmoid":
		return Sigmoid, nil
	case "elu":
		return ELU, nil
	case "gelu":
		return GELU, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}

// apply runs act when set.
func (act Activation) apply(x *tensor.Tensor) *tensor.Tensor {
	if act == nil {
		return x
	}
	return act(x)
}

// GatedUnit splits x in half along the last axis and returns
// tanh(filter) * sigmoid(gate).
func GatedUnit(x *tensor.Tensor) *tensor.Tensor {
	halves := x.Chunk(2, -1)
	filter, gate := halves[0].Data(), halves[1].Data()
	out := tensor.Zeros(halves[0].Shape())
	data := out.Data()
	for i := range data {
		data[i] = math32.Tanh(filter[i]) * tensor.Sigmoid(gate[i])
	}
	return out
}

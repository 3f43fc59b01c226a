package tensor

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Add returns t + other with broadcasting.
func (t *Tensor) Add(other *Tensor) *Tensor {
	return t.binary(other, "Add", func(a, b float32) float32 { return a + b })
}

// Sub returns t - other with broadcasting.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	return t.binary(other, "Sub", func(a, b float32) float32 { return a - b })
}

// Mul returns the element-wise product with broadcasting.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	return t.binary(other, "Mul", func(a, b float32) float32 { return a * b })
}

// Div returns the element-wise quotient with broadcasting.
func (t *Tensor) Div(other *Tensor) *Tensor {
	return t.binary(other, "Div", func(a, b float32) float32 { return a / b })
}

// binary applies f element-wise, broadcasting both operands to a common shape.
// Panics if the shapes cannot be broadcast.
func (t *Tensor) binary(other *Tensor, name string, f func(a, b float32) float32) *Tensor {
	if t.shape.Equal(other.shape) {
		out := make([]float32, len(t.data))
		for i := range out {
			out[i] = f(t.data[i], other.data[i])
		}
		return &Tensor{shape: t.shape.Clone(), data: out}
	}

	shape, err := BroadcastShapes(t.shape, other.shape)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	out := Zeros(shape)
	if len(out.data) == 0 {
		return out
	}

	aStrides := broadcastStrides(t.shape, shape)
	bStrides := broadcastStrides(other.shape, shape)
	idx := make([]int, len(shape))
	ai, bi := 0, 0
	for i := range out.data {
		out.data[i] = f(t.data[ai], other.data[bi])
		// Odometer increment over the output index.
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ai += aStrides[d]
			bi += bStrides[d]
			if idx[d] < shape[d] {
				break
			}
			ai -= aStrides[d] * shape[d]
			bi -= bStrides[d] * shape[d]
			idx[d] = 0
		}
	}
	return out
}

// AddScalar adds s to every element.
func (t *Tensor) AddScalar(s float32) *Tensor {
	return t.Map(func(v float32) float32 { return v + s })
}

// MulScalar multiplies every element by s.
func (t *Tensor) MulScalar(s float32) *Tensor {
	return t.Map(func(v float32) float32 { return v * s })
}

// Map applies f to every element and returns the result.
func (t *Tensor) Map(f func(float32) float32) *Tensor {
	out := make([]float32, len(t.data))
	for i, v := range t.data {
		out[i] = f(v)
	}
	return &Tensor{shape: t.shape.Clone(), data: out}
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tensor) Tanh() *Tensor {
	return t.Map(math32.Tanh)
}

// Sigmoid applies 1 / (1 + exp(-x)) element-wise.
func (t *Tensor) Sigmoid() *Tensor {
	return t.Map(Sigmoid)
}

// ReLU applies max(0, x) element-wise.
func (t *Tensor) ReLU() *Tensor {
	return t.Map(func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// ELU applies the exponential linear unit with alpha = 1.
func (t *Tensor) ELU() *Tensor {
	return t.Map(func(v float32) float32 {
		if v > 0 {
			return v
		}
		return math32.Expm1(v)
	})
}

// Exp applies exp(x) element-wise.
func (t *Tensor) Exp() *Tensor {
	return t.Map(math32.Exp)
}

// Sigmoid is the scalar logistic function.
func Sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}

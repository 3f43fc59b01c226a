// Package tensor is the numerical runtime underneath the forecasting models.
//
// It provides dense row-major float32 tensors with NumPy-style broadcasting,
// BLAS-backed matrix products (gonum blas32), and the handful of shape
// manipulations the models need (permute, concat, split, narrow, select).
//
// Tensors are treated as values: operations never modify their inputs and
// always return a new tensor. Reshape is the only view and shares storage.
//
// Example:
//
//	x := tensor.Zeros(tensor.Shape{2, 3})
//	y := tensor.Full(tensor.Shape{2, 3}, 1)
//	z := x.Add(y)  // Element-wise addition
package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	shape Shape
	data  []float32
}

// New wraps data in a tensor of the given shape without copying.
func New(shape Shape, data []float32) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	buf := make([]float32, len(data))
	copy(buf, data)
	return New(shape, buf)
}

// MustFromSlice is FromSlice that panics on a shape/length mismatch.
// Intended for literals in tests and examples.
func MustFromSlice(data []float32, shape Shape) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(err)
	}
	return &Tensor{shape: shape.Clone(), data: make([]float32, shape.NumElements())}
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Shape returns the tensor's shape.
// The returned slice must not be modified.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of one dimension. Negative axes count from the end.
func (t *Tensor) Dim(axis int) int {
	return t.shape[t.shape.Axis(axis)]
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying storage (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor and
// any reshaped views of it.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// offset computes the flat index of indices, panicking when out of bounds.
func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	off := 0
	strides := t.shape.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		off += idx * strides[i]
	}
	return off
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices)] = value
}

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() float32 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Item() only works for single-element tensors, got shape %v", t.shape))
	}
	return t.data[0]
}

// String renders shape and a short data prefix, for debugging.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v[", []int(t.shape))
	for i, v := range t.data {
		if i == 8 {
			sb.WriteString(" ...")
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%g", v)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the tensors that flow through
// the forecasting models.
//
// A Tensor is a dense row-major float32 array. Model inputs are rank-3
// [batch, steps, features] tensors and predictions are [batch, horizon, 1].
//
// Example:
//
//	x, err := tensor.FromSlice(values, tensor.Shape{batch, steps, 1})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(x.Shape()) // [batch steps 1]
package tensor

import (
	"math/rand/v2"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Tensor is a dense row-major float32 tensor.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// New wraps data in a tensor of the given shape without copying.
func New(shape Shape, data []float32) (*Tensor, error) {
	return tensor.New(shape, data)
}

// FromSlice creates a tensor from a copy of data.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// MustFromSlice is FromSlice that panics on a length mismatch.
func MustFromSlice(data []float32, shape Shape) *Tensor {
	return tensor.MustFromSlice(data, shape)
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return tensor.Ones(shape)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	return tensor.Full(shape, value)
}

// Concat joins tensors along axis. Nil tensors are skipped.
func Concat(axis int, ts ...*Tensor) *Tensor {
	return tensor.Concat(axis, ts...)
}

// RandNormal samples a tensor from N(mean, std²).
func RandNormal(shape Shape, mean, std float32, rng *rand.Rand) *Tensor {
	return tensor.RandNormal(shape, mean, std, rng)
}

// NewRand returns a PCG-backed random source for seed.
func NewRand(seed uint64) *rand.Rand {
	return tensor.NewRand(seed)
}

// AllClose reports whether a and b have equal shapes and element-wise
// |a-b| <= atol + rtol*|b|.
func AllClose(a, b *Tensor, rtol, atol float32) bool {
	return tensor.AllClose(a, b, rtol, atol)
}

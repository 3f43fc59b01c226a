package tensor

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Softmax normalizes the last axis with the max-subtraction trick.
//
// Rows whose entries are all -Inf produce zeros instead of NaN.
func (t *Tensor) Softmax() *Tensor {
	if len(t.shape) == 0 {
		panic("Softmax: scalar tensor")
	}
	n := t.shape[len(t.shape)-1]
	out := t.Clone()
	if n == 0 {
		return out
	}
	for row := 0; row < len(out.data); row += n {
		v := out.data[row : row+n]
		maxVal := v[0]
		for _, x := range v[1:] {
			if x > maxVal {
				maxVal = x
			}
		}
		if math32.IsInf(maxVal, -1) {
			for i := range v {
				v[i] = 0
			}
			continue
		}
		var sum float32
		for i, x := range v {
			e := math32.Exp(x - maxVal)
			v[i] = e
			sum += e
		}
		for i := range v {
			v[i] /= sum
		}
	}
	return out
}

// reduce folds axis with f, starting every output slot from init.
func (t *Tensor) reduce(axis int, keepDim bool, init float32, f func(acc, v float32) float32) (*Tensor, int) {
	axis = t.shape.Axis(axis)
	outer, dim, inner := layout(t.shape, axis)
	outShape := t.shape.Clone()
	outShape[axis] = 1
	out := Full(outShape, init)
	for o := 0; o < outer; o++ {
		for d := 0; d < dim; d++ {
			src := t.data[(o*dim+d)*inner : (o*dim+d+1)*inner]
			dst := out.data[o*inner : (o+1)*inner]
			for i, v := range src {
				dst[i] = f(dst[i], v)
			}
		}
	}
	if !keepDim {
		out = out.Squeeze(axis)
	}
	return out, dim
}

// Sum adds elements along axis.
func (t *Tensor) Sum(axis int, keepDim bool) *Tensor {
	out, _ := t.reduce(axis, keepDim, 0, func(acc, v float32) float32 { return acc + v })
	return out
}

// Mean averages elements along axis.
func (t *Tensor) Mean(axis int, keepDim bool) *Tensor {
	out, n := t.reduce(axis, keepDim, 0, func(acc, v float32) float32 { return acc + v })
	if n == 0 {
		panic(fmt.Sprintf("Mean: empty axis %d of %v", axis, t.shape))
	}
	inv := 1 / float32(n)
	for i := range out.data {
		out.data[i] *= inv
	}
	return out
}

// Max takes the maximum along axis.
func (t *Tensor) Max(axis int, keepDim bool) *Tensor {
	out, _ := t.reduce(axis, keepDim, math32.Inf(-1), func(acc, v float32) float32 {
		if v > acc {
			return v
		}
		return acc
	})
	return out
}

// CumSum returns running sums along axis.
func (t *Tensor) CumSum(axis int) *Tensor {
	axis = t.shape.Axis(axis)
	outer, dim, inner := layout(t.shape, axis)
	out := t.Clone()
	for o := 0; o < outer; o++ {
		for d := 1; d < dim; d++ {
			prev := out.data[(o*dim+d-1)*inner : (o*dim+d)*inner]
			cur := out.data[(o*dim+d)*inner : (o*dim+d+1)*inner]
			for i := range cur {
				cur[i] += prev[i]
			}
		}
	}
	return out
}

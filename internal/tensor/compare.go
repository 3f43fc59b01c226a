package tensor

import "github.com/chewxy/math32"

// AllClose reports whether a and b have the same shape and every pair of
// elements satisfies |a - b| <= atol + rtol*|b|.
func AllClose(a, b *Tensor, rtol, atol float32) bool {
	if !a.shape.Equal(b.shape) {
		return false
	}
	for i, x := range a.data {
		y := b.data[i]
		if math32.Abs(x-y) > atol+rtol*math32.Abs(y) {
			return false
		}
	}
	return true
}

// AllFinite reports whether t contains no NaN or infinite values.
func (t *Tensor) AllFinite() bool {
	for _, v := range t.data {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Equal reports exact shape and value equality.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}

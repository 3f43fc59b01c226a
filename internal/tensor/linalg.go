package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/imu1984/Time-series-prediction/internal/parallel"
)

// MatMul multiplies the last axis of t by a 2-D matrix.
//
// t has shape [..., K] and w has shape [K, N]; the result has shape [..., N].
// Leading dimensions are flattened into the row dimension of a single GEMM.
func (t *Tensor) MatMul(w *Tensor) *Tensor {
	if len(w.shape) != 2 {
		panic(fmt.Sprintf("MatMul: expected 2D right operand, got shape %v", w.shape))
	}
	if len(t.shape) == 0 {
		panic("MatMul: left operand must have at least one dimension")
	}
	k := t.shape[len(t.shape)-1]
	if w.shape[0] != k {
		panic(fmt.Sprintf("MatMul: shape mismatch %v @ %v", t.shape, w.shape))
	}
	n := w.shape[1]
	m := t.shape[:len(t.shape)-1].NumElements()

	outShape := append(t.shape[:len(t.shape)-1].Clone(), n)
	out := Zeros(outShape)
	gemm(t.data, m, k, w.data, n, out.data)
	return out
}

// BatchMatMul multiplies matching matrices in two batched tensors.
//
// t has shape [..., M, K]. other has shape [..., K, N], or [..., N, K] when
// transposeOther is true. Leading dimensions must be equal. The result has
// shape [..., M, N]. Batches are independent and may run in parallel.
func (t *Tensor) BatchMatMul(other *Tensor, transposeOther bool) *Tensor {
	if len(t.shape) < 2 || len(t.shape) != len(other.shape) {
		panic(fmt.Sprintf("BatchMatMul: incompatible ranks %v and %v", t.shape, other.shape))
	}
	r := len(t.shape)
	lead := t.shape[:r-2]
	if !lead.Equal(other.shape[:r-2]) {
		panic(fmt.Sprintf("BatchMatMul: batch dimensions differ: %v vs %v", t.shape, other.shape))
	}

	m, k := t.shape[r-2], t.shape[r-1]
	var bk, n int
	if transposeOther {
		n, bk = other.shape[r-2], other.shape[r-1]
	} else {
		bk, n = other.shape[r-2], other.shape[r-1]
	}
	if bk != k {
		panic(fmt.Sprintf("BatchMatMul: inner dimensions differ: %v vs %v (transposed=%v)", t.shape, other.shape, transposeOther))
	}

	outShape := append(lead.Clone(), m, n)
	out := Zeros(outShape)
	batches := lead.NumElements()
	aSize, bSize, cSize := m*k, k*n, m*n

	parallel.For(batches, func(i int) {
		a := t.data[i*aSize : (i+1)*aSize]
		b := other.data[i*bSize : (i+1)*bSize]
		c := out.data[i*cSize : (i+1)*cSize]
		if transposeOther {
			gemmTransB(a, m, k, b, n, c)
			return
		}
		gemm(a, m, k, b, n, c)
	}, parallel.Default())

	return out
}

// gemm computes c = a[m×k] @ b[k×n] through gonum BLAS.
// Degenerate sizes are handled here because BLAS rejects zero strides.
func gemm(a []float32, m, k int, b []float32, n int, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		for i := range c[:m*n] {
			c[i] = 0
		}
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}

// gemmTransB computes c = a[m×k] @ b[n×k]ᵀ.
func gemmTransB(a []float32, m, k int, b []float32, n int, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		for i := range c[:m*n] {
			c[i] = 0
		}
		return
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: n, Cols: k, Stride: k, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}

package tensor

import "fmt"

// layout splits a shape around axis into (outer, dim, inner) extents.
func layout(s Shape, axis int) (outer, dim, inner int) {
	outer, inner = 1, 1
	for _, d := range s[:axis] {
		outer *= d
	}
	for _, d := range s[axis+1:] {
		inner *= d
	}
	return outer, s[axis], inner
}

// Reshape returns a view with a new shape sharing t's storage.
//
// One dimension may be -1 and is inferred from the remaining ones.
// Panics if the element count does not match.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	s := Shape(shape).Clone()
	infer := -1
	known := 1
	for i, d := range s {
		if d == -1 {
			if infer >= 0 {
				panic(fmt.Sprintf("Reshape: more than one inferred dimension in %v", shape))
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			panic(fmt.Sprintf("Reshape: cannot infer dimension of %v from %d elements", shape, len(t.data)))
		}
		s[infer] = len(t.data) / known
	}
	if err := s.Validate(); err != nil {
		panic(fmt.Sprintf("Reshape: %v", err))
	}
	if s.NumElements() != len(t.data) {
		panic(fmt.Sprintf("Reshape: cannot reshape %v into %v", t.shape, s))
	}
	return &Tensor{shape: s, data: t.data}
}

// Permute reorders dimensions. axes must be a permutation of 0..rank-1.
//
// Example:
//
//	x := tensor.Zeros(tensor.Shape{2, 5, 8})
//	y := x.Permute(0, 2, 1) // shape [2, 8, 5]
func (t *Tensor) Permute(axes ...int) *Tensor {
	r := len(t.shape)
	if len(axes) != r {
		panic(fmt.Sprintf("Permute: expected %d axes, got %d", r, len(axes)))
	}
	seen := make([]bool, r)
	outShape := make(Shape, r)
	for i, a := range axes {
		if a < 0 || a >= r || seen[a] {
			panic(fmt.Sprintf("Permute: invalid permutation %v", axes))
		}
		seen[a] = true
		outShape[i] = t.shape[a]
	}

	out := Zeros(outShape)
	if len(out.data) == 0 {
		return out
	}
	srcStrides := t.shape.Strides()
	// Strides of the source, reordered to walk it in output order.
	walk := make([]int, r)
	for i, a := range axes {
		walk[i] = srcStrides[a]
	}
	idx := make([]int, r)
	src := 0
	for i := range out.data {
		out.data[i] = t.data[src]
		for d := r - 1; d >= 0; d-- {
			idx[d]++
			src += walk[d]
			if idx[d] < outShape[d] {
				break
			}
			src -= walk[d] * outShape[d]
			idx[d] = 0
		}
	}
	return out
}

// Transpose swaps two dimensions.
func (t *Tensor) Transpose(a, b int) *Tensor {
	a, b = t.shape.Axis(a), t.shape.Axis(b)
	axes := make([]int, len(t.shape))
	for i := range axes {
		axes[i] = i
	}
	axes[a], axes[b] = axes[b], axes[a]
	return t.Permute(axes...)
}

// Narrow returns a copy of the slice [start, start+length) along axis.
func (t *Tensor) Narrow(axis, start, length int) *Tensor {
	axis = t.shape.Axis(axis)
	outer, dim, inner := layout(t.shape, axis)
	if start < 0 || length < 0 || start+length > dim {
		panic(fmt.Sprintf("Narrow: range [%d, %d) out of bounds for axis %d of %v", start, start+length, axis, t.shape))
	}
	outShape := t.shape.Clone()
	outShape[axis] = length
	out := Zeros(outShape)
	block := length * inner
	for o := 0; o < outer; o++ {
		copy(out.data[o*block:(o+1)*block], t.data[(o*dim+start)*inner:(o*dim+start+length)*inner])
	}
	return out
}

// Select picks index idx along axis and drops that axis.
func (t *Tensor) Select(axis, idx int) *Tensor {
	axis = t.shape.Axis(axis)
	n := t.Narrow(axis, idx, 1)
	return n.Squeeze(axis)
}

// Split cuts t along axis into consecutive pieces of the given sizes.
// The sizes must add up to the length of the axis.
func (t *Tensor) Split(axis int, sizes ...int) []*Tensor {
	axis = t.shape.Axis(axis)
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != t.shape[axis] {
		panic(fmt.Sprintf("Split: sizes %v do not cover axis %d of %v", sizes, axis, t.shape))
	}
	parts := make([]*Tensor, len(sizes))
	start := 0
	for i, s := range sizes {
		parts[i] = t.Narrow(axis, start, s)
		start += s
	}
	return parts
}

// Chunk splits t along axis into n equal pieces.
func (t *Tensor) Chunk(n, axis int) []*Tensor {
	axis = t.shape.Axis(axis)
	if n <= 0 || t.shape[axis]%n != 0 {
		panic(fmt.Sprintf("Chunk: axis %d of %v is not divisible into %d pieces", axis, t.shape, n))
	}
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = t.shape[axis] / n
	}
	return t.Split(axis, sizes...)
}

// Unsqueeze inserts a dimension of size 1 at axis. The result is a view.
func (t *Tensor) Unsqueeze(axis int) *Tensor {
	if axis < 0 {
		axis += len(t.shape) + 1
	}
	if axis < 0 || axis > len(t.shape) {
		panic(fmt.Sprintf("Unsqueeze: axis %d out of range for %v", axis, t.shape))
	}
	s := make(Shape, 0, len(t.shape)+1)
	s = append(s, t.shape[:axis]...)
	s = append(s, 1)
	s = append(s, t.shape[axis:]...)
	return &Tensor{shape: s, data: t.data}
}

// Squeeze removes a dimension of size 1 at axis. The result is a view.
func (t *Tensor) Squeeze(axis int) *Tensor {
	axis = t.shape.Axis(axis)
	if t.shape[axis] != 1 {
		panic(fmt.Sprintf("Squeeze: axis %d of %v has size %d", axis, t.shape, t.shape[axis]))
	}
	s := make(Shape, 0, len(t.shape)-1)
	s = append(s, t.shape[:axis]...)
	s = append(s, t.shape[axis+1:]...)
	return &Tensor{shape: s, data: t.data}
}

// Concat joins tensors along axis. All other dimensions must agree.
// Nil entries are skipped; at least one tensor must be non-nil.
func Concat(axis int, ts ...*Tensor) *Tensor {
	var parts []*Tensor
	for _, t := range ts {
		if t != nil {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		panic("Concat: no tensors")
	}
	first := parts[0]
	axis = first.shape.Axis(axis)

	outShape := first.shape.Clone()
	outShape[axis] = 0
	for _, p := range parts {
		if len(p.shape) != len(first.shape) {
			panic(fmt.Sprintf("Concat: rank mismatch %v vs %v", first.shape, p.shape))
		}
		for d := range p.shape {
			if d != axis && p.shape[d] != first.shape[d] {
				panic(fmt.Sprintf("Concat: shape mismatch %v vs %v on axis %d", first.shape, p.shape, d))
			}
		}
		outShape[axis] += p.shape[axis]
	}

	out := Zeros(outShape)
	outer, total, inner := layout(outShape, axis)
	offset := 0
	for _, p := range parts {
		block := p.shape[axis] * inner
		for o := 0; o < outer; o++ {
			dst := o*total*inner + offset*inner
			copy(out.data[dst:dst+block], p.data[o*block:(o+1)*block])
		}
		offset += p.shape[axis]
	}
	return out
}

// Stack joins equally shaped tensors along a new axis.
func Stack(axis int, ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("Stack: no tensors")
	}
	expanded := make([]*Tensor, len(ts))
	for i, t := range ts {
		if !t.shape.Equal(ts[0].shape) {
			panic(fmt.Sprintf("Stack: shape mismatch %v vs %v", ts[0].shape, t.shape))
		}
		expanded[i] = t.Unsqueeze(axis)
	}
	return Concat(axis, expanded...)
}

// Repeat tiles t n times along axis.
func (t *Tensor) Repeat(n, axis int) *Tensor {
	parts := make([]*Tensor, n)
	for i := range parts {
		parts[i] = t
	}
	return Concat(axis, parts...)
}

package layers

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/parallel"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// DefaultProbFactor is the sampling factor c in u = c * ceil(ln L).
const DefaultProbFactor = 5

// ProbAttention implements probabilistic-sparse (ProbSparse) attention.
//
// Per head, u_k = min(c*ceil(ln L_k), L_k) keys are sampled and every query
// is scored with the sparsity measure
//
//	M(q) = max_j(q·k_j) - Σ_j(q·k_j) / L_k
//
// over the sampled keys. The top u_q = min(c*ceil(ln L_q), L_q) queries get
// exact attention over all keys. The remaining queries receive mean(V).
//
// When u_q covers every query the result equals full attention, so short
// sequences fall back to exact behavior without any sampling. Masked calls
// always select every query, so row i never depends on positions after i.
type ProbAttention struct {
	hidden  int
	heads   int
	factor  int
	query   *nn.Dense
	key     *nn.Dense
	value   *nn.Dense
	dropout *nn.Dropout
}

// NewProbAttention creates a ProbSparse attention layer.
//
// Parameters:
//   - hidden: Projection width, split across heads
//   - heads: Number of attention heads
//   - factor: Sampling factor c (DefaultProbFactor in the reference design)
//   - dropout: Dropout rate on the attention weights
//   - init: Weight initializer
func NewProbAttention(hidden, heads, factor int, dropout float32, init *nn.Initializer) (*ProbAttention, error) {
	if err := validateHeads(hidden, heads); err != nil {
		return nil, err
	}
	if factor <= 0 {
		return nil, fmt.Errorf("prob attention: factor must be positive, got %d", factor)
	}
	return &ProbAttention{
		hidden:  hidden,
		heads:   heads,
		factor:  factor,
		query:   nn.NewDense(hidden, nil, false, init),
		key:     nn.NewDense(hidden, nil, false, init),
		value:   nn.NewDense(hidden, nil, false, init),
		dropout: nn.NewDropout(dropout),
	}, nil
}

// SampleCount returns min(factor*ceil(ln n), n), and at least 1 for n > 0.
func SampleCount(factor, n int) int {
	if n <= 0 {
		return 0
	}
	u := factor * int(math32.Ceil(math32.Log(float32(n))))
	return min(max(u, 1), n)
}

// Forward computes ProbSparse attention. Shapes follow Attention.Forward.
//
// Sampling and dropout draw from opts.Rand; a random source is required
// whenever fewer than all queries are selected or dropout is active.
func (p *ProbAttention) Forward(q, k, v, mask *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	qp, kp, vp, err := project(p.query, p.key, p.value, q, k, v)
	if err != nil {
		return nil, err
	}
	batch, lenQ, lenK := q.Dim(0), q.Dim(1), k.Dim(1)
	m, err := broadcastMask(mask, batch, lenQ, lenK)
	if err != nil {
		return nil, err
	}

	// Query ranking compares every row against every other, so a row's
	// selection would depend on later positions. Masked calls stay exact.
	uQ, uK := SampleCount(p.factor, lenQ), SampleCount(p.factor, lenK)
	if m != nil {
		uQ = lenQ
	}
	sampling := uQ < lenQ
	dropping := opts.Training && p.dropout.Rate > 0

	qh, kh, vh := splitHeads(qp, p.heads), splitHeads(kp, p.heads), splitHeads(vp, p.heads)
	d := p.hidden / p.heads
	scale := 1 / math32.Sqrt(float32(d))

	// Per-head sources are derived up front so heads can run concurrently
	// while staying reproducible.
	var seeds []uint64
	if sampling || dropping {
		if opts.Rand == nil {
			return nil, fmt.Errorf("prob attention: a random source is required")
		}
		seeds = make([]uint64, batch*p.heads)
		for i := range seeds {
			seeds[i] = opts.Rand.Uint64()
		}
	}

	out := tensor.Zeros(tensor.Shape{batch, p.heads, lenQ, d})
	qd, kd, vd, od := qh.Data(), kh.Data(), vh.Data(), out.Data()
	parallel.ForGrid(batch, p.heads, func(b, h int) {
		slot := b*p.heads + h
		var rng *rand.Rand
		if seeds != nil {
			rng = tensor.NewRand(seeds[slot])
		}
		head := probHead{
			q:     qd[slot*lenQ*d : (slot+1)*lenQ*d],
			k:     kd[slot*lenK*d : (slot+1)*lenK*d],
			v:     vd[slot*lenK*d : (slot+1)*lenK*d],
			out:   od[slot*lenQ*d : (slot+1)*lenQ*d],
			lenQ:  lenQ,
			lenK:  lenK,
			dim:   d,
			scale: scale,
		}
		if m != nil {
			mb := 0
			if m.Dim(0) > 1 {
				mb = b
			}
			head.mask = m.Data()[mb*lenQ*lenK : (mb+1)*lenQ*lenK]
		}
		head.run(uQ, uK, rng, p.dropout, opts.Training)
	}, parallel.Default())

	return mergeHeads(out), nil
}

// probHead holds the row-major slices of one (batch, head) pair.
type probHead struct {
	q, k, v, out []float32
	mask         []float32 // [lenQ, lenK] or nil
	lenQ, lenK   int
	dim          int
	scale        float32
}

func (h *probHead) dot(i, j int) float32 {
	qi := h.q[i*h.dim : (i+1)*h.dim]
	kj := h.k[j*h.dim : (j+1)*h.dim]
	var s float32
	for c := range qi {
		s += qi[c] * kj[c]
	}
	return s
}

func (h *probHead) run(uQ, uK int, rng *rand.Rand, dropout *nn.Dropout, training bool) {
	h.initialContext()

	selected := make([]int, h.lenQ)
	for i := range selected {
		selected[i] = i
	}
	if uQ < h.lenQ {
		selected = h.topQueries(uQ, uK, rng)
	}

	weights := make([]float32, h.lenK)
	for _, i := range selected {
		for j := range weights {
			weights[j] = h.dot(i, j) * h.scale
			if h.mask != nil {
				weights[j] += h.mask[i*h.lenK+j]
			}
		}
		row := tensor.MustFromSlice(weights, tensor.Shape{h.lenK}).Softmax()
		if training {
			row = dropout.Forward(row, nn.CallOptions{Training: true, Rand: rng})
		}
		o := h.out[i*h.dim : (i+1)*h.dim]
		clear(o)
		for j, w := range row.Data() {
			vj := h.v[j*h.dim : (j+1)*h.dim]
			for c := range o {
				o[c] += w * vj[c]
			}
		}
	}
}

// initialContext fills every query row with mean(V).
func (h *probHead) initialContext() {
	mean := make([]float32, h.dim)
	for j := 0; j < h.lenK; j++ {
		for c, x := range h.v[j*h.dim : (j+1)*h.dim] {
			mean[c] += x
		}
	}
	for c := range mean {
		mean[c] /= float32(h.lenK)
	}
	for i := 0; i < h.lenQ; i++ {
		copy(h.out[i*h.dim:(i+1)*h.dim], mean)
	}
}

// topQueries ranks queries by the sparsity measure over uK sampled keys.
func (h *probHead) topQueries(uQ, uK int, rng *rand.Rand) []int {
	sample := make([]int, uK)
	for s := range sample {
		sample[s] = rng.IntN(h.lenK)
	}

	type scored struct {
		index int
		m     float32
	}
	ranked := make([]scored, h.lenQ)
	for i := range ranked {
		maxVal := math32.Inf(-1)
		var sum float32
		for _, j := range sample {
			s := h.dot(i, j)
			maxVal = max(maxVal, s)
			sum += s
		}
		ranked[i] = scored{index: i, m: maxVal - sum/float32(h.lenK)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.m, a.m)
	})

	top := make([]int, uQ)
	for i := range top {
		top[i] = ranked[i].index
	}
	return top
}

// Parameters returns the projection weights.
func (p *ProbAttention) Parameters() []*nn.Parameter {
	return p.children().Parameters()
}

// LoadStateDict loads the projection weights.
func (p *ProbAttention) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return p.children().LoadStateDict(stateDict)
}

func (p *ProbAttention) children() nn.Children {
	return nn.Children{
		{Name: "query", Layer: p.query},
		{Name: "key", Layer: p.key},
		{Name: "value", Layer: p.value},
	}
}

// Package layers provides the forecasting building blocks shared by the
// attention architectures: multi-head attention (full and probabilistic
// sparse), the causal mask, the data embedding and the position-wise
// feed-forward block.
package layers

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// AttentionLayer is implemented by Attention and ProbAttention so encoder and
// decoder blocks can be built with either variant.
type AttentionLayer interface {
	nn.Layer
	Forward(q, k, v, mask *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error)
}

// Attention implements multi-head scaled dot-product attention.
//
// Query, key and value are projected to hidden_size without bias, split into
// heads of hidden_size/heads features, combined as
//
//	softmax(Q Kᵀ / sqrt(head_dim) + mask) V
//
// and merged back. The mask is additive: -1e9 at forbidden positions.
//
// Example:
//
//	attn, err := layers.NewAttention(64, 4, 0.1, init)
//	y, err := attn.Forward(x, x, x, layers.CausalMask(x.Dim(1)), opts) // [B, T, 64]
type Attention struct {
	hidden  int
	heads   int
	query   *nn.Dense
	key     *nn.Dense
	value   *nn.Dense
	dropout *nn.Dropout
}

// NewAttention creates a multi-head attention layer.
//
// Returns ErrInvalidConfig when hidden is not divisible by heads.
func NewAttention(hidden, heads int, dropout float32, init *nn.Initializer) (*Attention, error) {
	if err := validateHeads(hidden, heads); err != nil {
		return nil, err
	}
	return &Attention{
		hidden:  hidden,
		heads:   heads,
		query:   nn.NewDense(hidden, nil, false, init),
		key:     nn.NewDense(hidden, nil, false, init),
		value:   nn.NewDense(hidden, nil, false, init),
		dropout: nn.NewDropout(dropout),
	}, nil
}

func validateHeads(hidden, heads int) error {
	if err := config.Positive("hidden_size", hidden); err != nil {
		return err
	}
	if err := config.Positive("num_attention_heads", heads); err != nil {
		return err
	}
	return config.Divisible("hidden_size", hidden, heads, "num_attention_heads")
}

// project applies the q/k/v projections and checks the batch and time axes.
func project(query, key, value *nn.Dense, q, k, v *tensor.Tensor) (qp, kp, vp *tensor.Tensor, err error) {
	for _, t := range []*tensor.Tensor{q, k, v} {
		if t.Rank() != 3 {
			return nil, nil, nil, fmt.Errorf("attention: expected 3D inputs [batch, time, features], got shape %v", t.Shape())
		}
	}
	if q.Dim(0) != k.Dim(0) || k.Dim(0) != v.Dim(0) {
		return nil, nil, nil, fmt.Errorf("attention: batch sizes differ: q=%v k=%v v=%v", q.Shape(), k.Shape(), v.Shape())
	}
	if k.Dim(1) != v.Dim(1) {
		return nil, nil, nil, fmt.Errorf("attention: key and value lengths differ: %d vs %d", k.Dim(1), v.Dim(1))
	}
	if qp, err = query.Forward(q); err != nil {
		return nil, nil, nil, fmt.Errorf("query projection: %w", err)
	}
	if kp, err = key.Forward(k); err != nil {
		return nil, nil, nil, fmt.Errorf("key projection: %w", err)
	}
	if vp, err = value.Forward(v); err != nil {
		return nil, nil, nil, fmt.Errorf("value projection: %w", err)
	}
	return qp, kp, vp, nil
}

// Forward computes attention of q over (k, v).
//
// Shapes:
//   - q: [batch, len_q, features]
//   - k, v: [batch, len_k, features]
//   - mask: nil, [len_q, len_k] or [1|batch, len_q, len_k]
//   - output: [batch, len_q, hidden]
func (a *Attention) Forward(q, k, v, mask *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	qp, kp, vp, err := project(a.query, a.key, a.value, q, k, v)
	if err != nil {
		return nil, err
	}
	m, err := broadcastMask(mask, q.Dim(0), q.Dim(1), k.Dim(1))
	if err != nil {
		return nil, err
	}

	qh, kh, vh := splitHeads(qp, a.heads), splitHeads(kp, a.heads), splitHeads(vp, a.heads)
	scale := 1 / math32.Sqrt(float32(a.hidden/a.heads))
	weights := attentionWeights(qh, kh, m, scale)
	weights = a.dropout.Forward(weights, opts)
	return mergeHeads(weights.BatchMatMul(vh, false)), nil
}

// attentionWeights returns softmax(Q Kᵀ * scale + mask) over the key axis.
//
// q: [B, H, Lq, d], k: [B, H, Lk, d], mask: nil or [1|B, Lq, Lk].
func attentionWeights(q, k, mask *tensor.Tensor, scale float32) *tensor.Tensor {
	scores := q.BatchMatMul(k, true).MulScalar(scale)
	if mask != nil {
		scores = scores.Add(mask.Unsqueeze(1))
	}
	return scores.Softmax()
}

// ScaledDotProduct computes softmax(Q Kᵀ * scale + mask) V on split heads.
//
// Parameters:
//   - q: Query tensor [batch, heads, len_q, head_dim]
//   - k, v: Key and value tensors [batch, heads, len_k, head_dim]
//   - mask: Additive mask [1|batch, len_q, len_k] or nil
//   - scale: Scaling factor, 0 for 1/sqrt(head_dim)
func ScaledDotProduct(q, k, v, mask *tensor.Tensor, scale float32) *tensor.Tensor {
	if scale == 0 {
		scale = 1 / math32.Sqrt(float32(q.Dim(-1)))
	}
	return attentionWeights(q, k, mask, scale).BatchMatMul(v, false)
}

// Parameters returns the projection weights.
func (a *Attention) Parameters() []*nn.Parameter {
	return a.children().Parameters()
}

// LoadStateDict loads the projection weights.
func (a *Attention) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return a.children().LoadStateDict(stateDict)
}

func (a *Attention) children() nn.Children {
	return nn.Children{
		{Name: "query", Layer: a.query},
		{Name: "key", Layer: a.key},
		{Name: "value", Layer: a.value},
	}
}

// splitHeads turns [B, L, H*d] into [B, H, L, d].
func splitHeads(x *tensor.Tensor, heads int) *tensor.Tensor {
	b, l, hidden := x.Dim(0), x.Dim(1), x.Dim(2)
	return x.Reshape(b, l, heads, hidden/heads).Permute(0, 2, 1, 3)
}

// mergeHeads turns [B, H, L, d] into [B, L, H*d].
func mergeHeads(x *tensor.Tensor) *tensor.Tensor {
	b, h, l, d := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	return x.Permute(0, 2, 1, 3).Reshape(b, l, h*d)
}

// broadcastMask validates an additive mask and returns it as
// [1|batch, len_q, len_k].
func broadcastMask(mask *tensor.Tensor, batch, lenQ, lenK int) (*tensor.Tensor, error) {
	if mask == nil {
		return nil, nil
	}
	m := mask
	if m.Rank() == 2 {
		m = m.Unsqueeze(0)
	}
	if m.Rank() != 3 || (m.Dim(0) != 1 && m.Dim(0) != batch) || m.Dim(1) != lenQ || m.Dim(2) != lenK {
		return nil, fmt.Errorf("attention: mask shape %v does not fit [%d, %d, %d]", mask.Shape(), batch, lenQ, lenK)
	}
	return m, nil
}

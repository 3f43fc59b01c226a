package informer

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/layers"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// normEpsilon is the LayerNorm and BatchNorm stability constant.
const normEpsilon = 1e-3

// EncoderLayer is one self-attention block:
//
//	x = norm1(x + dropout(attention(x, x, x)))
//	y = norm2(x + dropout(ffn(x)))
type EncoderLayer struct {
	attention layers.AttentionLayer
	ffn       *layers.FeedForward
	norm1     *nn.LayerNorm
	norm2     *nn.LayerNorm
	dropout   *nn.Dropout
}

// NewEncoderLayer declares an encoder layer for cfg.
func NewEncoderLayer(cfg Config, init *nn.Initializer) (*EncoderLayer, error) {
	attn, err := cfg.selfAttention(init)
	if err != nil {
		return nil, err
	}
	act, err := nn.ActivationByName(cfg.FFNActivation)
	if err != nil {
		return nil, err
	}
	return &EncoderLayer{
		attention: attn,
		ffn:       layers.NewFeedForward(cfg.HiddenSize, cfg.FFNIntermediateSize, act, cfg.HiddenDropoutProb, init),
		norm1:     nn.NewLayerNorm(cfg.HiddenSize, normEpsilon),
		norm2:     nn.NewLayerNorm(cfg.HiddenSize, normEpsilon),
		dropout:   nn.NewDropout(cfg.HiddenDropoutProb),
	}, nil
}

// Forward maps [B, T, hidden] to [B, T, hidden].
func (l *EncoderLayer) Forward(x *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	a, err := l.attention.Forward(x, x, x, nil, opts)
	if err != nil {
		return nil, err
	}
	x, err = l.norm1.Forward(x.Add(l.dropout.Forward(a, opts)))
	if err != nil {
		return nil, err
	}
	y, err := l.ffn.Forward(x, opts)
	if err != nil {
		return nil, err
	}
	return l.norm2.Forward(x.Add(l.dropout.Forward(y, opts)))
}

// Parameters returns the layer weights.
func (l *EncoderLayer) Parameters() []*nn.Parameter {
	return l.children().Parameters()
}

// LoadStateDict loads the layer weights.
func (l *EncoderLayer) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return l.children().LoadStateDict(stateDict)
}

func (l *EncoderLayer) children() nn.Children {
	return nn.Children{
		{Name: "attention", Layer: l.attention},
		{Name: "ffn", Layer: l.ffn},
		{Name: "norm1", Layer: l.norm1},
		{Name: "norm2", Layer: l.norm2},
	}
}

// DistilConv halves the time axis between encoder layers:
// causal conv (kernel 3) → BatchNorm → ELU → MaxPool1D(3, stride 2, same).
type DistilConv struct {
	conv *nn.Conv1D
	norm *nn.BatchNorm
	pool *nn.MaxPool1D
}

// NewDistilConv declares a distillation block of the given width.
func NewDistilConv(filters int, init *nn.Initializer) *DistilConv {
	return &DistilConv{
		conv: nn.NewConv1D(filters, 3, 1, nn.PaddingCausal, true, init),
		norm: nn.NewBatchNorm(filters, normEpsilon),
		pool: nn.NewMaxPool1D(3, 2, nn.PaddingSame),
	}
}

// Forward maps [B, T, C] to [B, ceil(T/2), C].
func (d *DistilConv) Forward(x *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	y, err := d.conv.Forward(x)
	if err != nil {
		return nil, err
	}
	if y, err = d.norm.Forward(y, opts); err != nil {
		return nil, err
	}
	return d.pool.Forward(y.ELU()), nil
}

// Parameters returns the convolution and normalization weights.
func (d *DistilConv) Parameters() []*nn.Parameter {
	return d.children().Parameters()
}

// LoadStateDict loads the convolution and normalization weights.
func (d *DistilConv) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return d.children().LoadStateDict(stateDict)
}

func (d *DistilConv) children() nn.Children {
	return nn.Children{
		{Name: "conv", Layer: d.conv},
		{Name: "norm", Layer: d.norm},
	}
}

// Encoder stacks NumLayers encoder layers, optionally distilling between
// them, and normalizes the result.
type Encoder struct {
	layers  []*EncoderLayer
	distils []*DistilConv
	norm    *nn.LayerNorm
}

// NewEncoder declares the encoder stack for cfg.
func NewEncoder(cfg Config, init *nn.Initializer) (*Encoder, error) {
	e := &Encoder{norm: nn.NewLayerNorm(cfg.HiddenSize, normEpsilon)}
	for range cfg.NumLayers {
		l, err := NewEncoderLayer(cfg, init)
		if err != nil {
			return nil, err
		}
		e.layers = append(e.layers, l)
	}
	if cfg.DistilConv {
		for range cfg.NumLayers - 1 {
			e.distils = append(e.distils, NewDistilConv(cfg.HiddenSize, init))
		}
	}
	return e, nil
}

// Forward encodes x [B, T, hidden] into the decoder memory
// [B, T', hidden], where T' = T unless distillation halves it after every
// layer but the last. The per-layer outputs are returned as well.
func (e *Encoder) Forward(x *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, []*tensor.Tensor, error) {
	hidden := make([]*tensor.Tensor, 0, len(e.layers))
	for i, l := range e.layers {
		var err error
		if x, err = l.Forward(x, opts); err != nil {
			return nil, nil, fmt.Errorf("encoder layer %d: %w", i, err)
		}
		hidden = append(hidden, x)
		if i < len(e.distils) {
			if x, err = e.distils[i].Forward(x, opts); err != nil {
				return nil, nil, fmt.Errorf("encoder distil %d: %w", i, err)
			}
		}
	}
	x, err := e.norm.Forward(x)
	if err != nil {
		return nil, nil, err
	}
	return x, hidden, nil
}

// Parameters returns the encoder weights.
func (e *Encoder) Parameters() []*nn.Parameter {
	return e.children().Parameters()
}

// LoadStateDict loads the encoder weights.
func (e *Encoder) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return e.children().LoadStateDict(stateDict)
}

func (e *Encoder) children() nn.Children {
	c := nn.Indexed("layers", e.layers)
	c = append(c, nn.Indexed("distil", e.distils)...)
	return append(c, nn.Child{Name: "norm", Layer: e.norm})
}

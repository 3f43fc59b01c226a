package informer

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/layers"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// DecoderLayer is one decoder block:
//
//	x = norm1(x + dropout(self_attention(x, x, x, causal)))
//	x = norm2(x + dropout(cross_attention(x, memory, memory)))
//	x = norm3(x + ffn(x))
//
// The feed-forward block uses ReLU regardless of FFNActivation.
type DecoderLayer struct {
	self    layers.AttentionLayer
	cross   *layers.Attention
	ffn     *layers.FeedForward
	norm1   *nn.LayerNorm
	norm2   *nn.LayerNorm
	norm3   *nn.LayerNorm
	dropout *nn.Dropout
}

// NewDecoderLayer declares a decoder layer for cfg.
func NewDecoderLayer(cfg Config, init *nn.Initializer) (*DecoderLayer, error) {
	self, err := cfg.selfAttention(init)
	if err != nil {
		return nil, err
	}
	cross, err := layers.NewAttention(cfg.HiddenSize, cfg.NumAttentionHeads, cfg.AttentionProbsDropoutProb, init)
	if err != nil {
		return nil, err
	}
	return &DecoderLayer{
		self:    self,
		cross:   cross,
		ffn:     layers.NewFeedForward(cfg.HiddenSize, cfg.FFNIntermediateSize, nn.ReLU, cfg.HiddenDropoutProb, init),
		norm1:   nn.NewLayerNorm(cfg.HiddenSize, normEpsilon),
		norm2:   nn.NewLayerNorm(cfg.HiddenSize, normEpsilon),
		norm3:   nn.NewLayerNorm(cfg.HiddenSize, normEpsilon),
		dropout: nn.NewDropout(cfg.HiddenDropoutProb),
	}, nil
}

// Forward maps x [B, H, hidden] attending to memory [B, T', hidden].
func (l *DecoderLayer) Forward(x, memory, mask *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	a, err := l.self.Forward(x, x, x, mask, opts)
	if err != nil {
		return nil, fmt.Errorf("self attention: %w", err)
	}
	if x, err = l.norm1.Forward(x.Add(l.dropout.Forward(a, opts))); err != nil {
		return nil, err
	}

	c, err := l.cross.Forward(x, memory, memory, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("cross attention: %w", err)
	}
	if x, err = l.norm2.Forward(x.Add(l.dropout.Forward(c, opts))); err != nil {
		return nil, err
	}

	y, err := l.ffn.Forward(x, opts)
	if err != nil {
		return nil, err
	}
	return l.norm3.Forward(x.Add(y))
}

// Parameters returns the layer weights.
func (l *DecoderLayer) Parameters() []*nn.Parameter {
	return l.children().Parameters()
}

// LoadStateDict loads the layer weights.
func (l *DecoderLayer) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return l.children().LoadStateDict(stateDict)
}

func (l *DecoderLayer) children() nn.Children {
	return nn.Children{
		{Name: "self_attention", Layer: l.self},
		{Name: "cross_attention", Layer: l.cross},
		{Name: "ffn", Layer: l.ffn},
		{Name: "norm1", Layer: l.norm1},
		{Name: "norm2", Layer: l.norm2},
		{Name: "norm3", Layer: l.norm3},
	}
}

// Decoder stacks NumDecoderLayers decoder layers and normalizes the result.
// All horizon steps are computed in one pass.
type Decoder struct {
	layers []*DecoderLayer
	norm   *nn.LayerNorm
}

// NewDecoder declares the decoder stack for cfg.
func NewDecoder(cfg Config, init *nn.Initializer) (*Decoder, error) {
	d := &Decoder{norm: nn.NewLayerNorm(cfg.HiddenSize, normEpsilon)}
	for range cfg.NumDecoderLayers {
		l, err := NewDecoderLayer(cfg, init)
		if err != nil {
			return nil, err
		}
		d.layers = append(d.layers, l)
	}
	return d, nil
}

// Forward decodes x [B, H, hidden] against memory and returns the
// normalized output and the per-layer outputs.
func (d *Decoder) Forward(x, memory, mask *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, []*tensor.Tensor, error) {
	hidden := make([]*tensor.Tensor, 0, len(d.layers))
	for i, l := range d.layers {
		var err error
		if x, err = l.Forward(x, memory, mask, opts); err != nil {
			return nil, nil, fmt.Errorf("decoder layer %d: %w", i, err)
		}
		hidden = append(hidden, x)
	}
	x, err := d.norm.Forward(x)
	if err != nil {
		return nil, nil, err
	}
	return x, hidden, nil
}

// Parameters returns the decoder weights.
func (d *Decoder) Parameters() []*nn.Parameter {
	return d.children().Parameters()
}

// LoadStateDict loads the decoder weights.
func (d *Decoder) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return d.children().LoadStateDict(stateDict)
}

func (d *Decoder) children() nn.Children {
	return append(nn.Indexed("layers", d.layers), nn.Child{Name: "norm", Layer: d.norm})
}

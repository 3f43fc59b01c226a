package wavenet

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Encoder is the dilated causal convolution stack.
//
// The input is projected to Filters with a tanh Dense layer. Each level
// applies a causal dilated convolution producing 2*Filters channels, the
// gated unit tanh(filter)*sigmoid(gate), and a Dense projection split into
// a skip half and a residual half. The residual is added to the running
// signal; the skips are concatenated across levels and turned into a
// preliminary forecast by two more Dense layers.
//
// The running signal entering each level is kept as that level's history
// for the decoder.
type Encoder struct {
	filters int
	input   *nn.Dense
	convs   []*nn.Conv1D
	gate    *nn.Dense // shared by every level
	hidden  *nn.Dense
	head    *nn.Dense
}

// NewEncoder declares an encoder for cfg.
func NewEncoder(cfg Config, init *nn.Initializer) *Encoder {
	e := &Encoder{
		filters: cfg.Filters,
		input:   nn.NewDense(cfg.Filters, nn.Tanh, true, init),
		gate:    nn.NewDense(2*cfg.Filters, nil, true, init),
		hidden:  nn.NewDense(cfg.DenseHiddenSize, nn.ReLU, true, init),
		head:    nn.NewDense(1, nil, true, init),
	}
	for i, d := range cfg.DilationRates {
		e.convs = append(e.convs, nn.NewConv1D(2*cfg.Filters, cfg.KernelSizes[i], d, nn.PaddingCausal, true, init))
	}
	return e
}

// Forward encodes x [B, T, F].
//
// It returns the preliminary forecast [B, T, 1] and one [B, T, Filters]
// state tensor per level.
func (e *Encoder) Forward(x *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	h, err := e.input.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("encoder input: %w", err)
	}

	states := make([]*tensor.Tensor, 0, len(e.convs))
	skips := make([]*tensor.Tensor, 0, len(e.convs))
	for i, conv := range e.convs {
		states = append(states, h)

		c, err := conv.Forward(h)
		if err != nil {
			return nil, nil, fmt.Errorf("encoder level %d: %w", i, err)
		}
		out, err := e.gate.Forward(nn.GatedUnit(c))
		if err != nil {
			return nil, nil, fmt.Errorf("encoder level %d: %w", i, err)
		}
		parts := out.Split(-1, e.filters, e.filters)
		skips = append(skips, parts[0])
		h = h.Add(parts[1])
	}

	y, err := e.hidden.Forward(tensor.Concat(-1, skips...).ReLU())
	if err != nil {
		return nil, nil, fmt.Errorf("encoder head: %w", err)
	}
	if y, err = e.head.Forward(y); err != nil {
		return nil, nil, fmt.Errorf("encoder head: %w", err)
	}
	return y, states, nil
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
	c := nn.Children{
		{Name: "dense_time1", Layer: e.input},
		{Name: "dense_time2", Layer: e.gate},
		{Name: "dense_time3", Layer: e.hidden},
		{Name: "dense_time4", Layer: e.head},
	}
	return append(c, nn.Indexed("conv_time", e.convs)...)
}

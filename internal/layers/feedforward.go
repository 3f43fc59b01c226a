package layers

import (
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// FeedForward is the position-wise block of a transformer layer, written as
// two kernel-size-1 convolutions: conv(hidden → inner), activation, dropout,
// conv(inner → hidden).
type FeedForward struct {
	expand     *nn.Conv1D
	project    *nn.Conv1D
	activation nn.Activation
	dropout    *nn.Dropout
}

// NewFeedForward creates a FeedForward block.
//
// Parameters:
//   - hidden: Model width (input and output)
//   - inner: Intermediate width
//   - act: Activation between the two convolutions, nil for none
//   - dropout: Dropout rate after the activation
//   - init: Weight initializer
func NewFeedForward(hidden, inner int, act nn.Activation, dropout float32, init *nn.Initializer) *FeedForward {
	return &FeedForward{
		expand:     nn.NewConv1D(inner, 1, 1, nn.PaddingValid, true, init),
		project:    nn.NewConv1D(hidden, 1, 1, nn.PaddingValid, true, init),
		activation: act,
		dropout:    nn.NewDropout(dropout),
	}
}

// Forward maps [batch, time, hidden] to [batch, time, hidden].
func (f *FeedForward) Forward(x *tensor.Tensor, opts nn.CallOptions) (*tensor.Tensor, error) {
	y, err := f.expand.Forward(x)
	if err != nil {
		return nil, err
	}
	if f.activation != nil {
		y = f.activation(y)
	}
	y = f.dropout.Forward(y, opts)
	return f.project.Forward(y)
}

// Parameters returns both convolutions' weights.
func (f *FeedForward) Parameters() []*nn.Parameter {
	return f.children().Parameters()
}

// LoadStateDict loads both convolutions' weights.
func (f *FeedForward) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return f.children().LoadStateDict(stateDict)
}

func (f *FeedForward) children() nn.Children {
	return nn.Children{
		{Name: "conv1", Layer: f.expand},
		{Name: "conv2", Layer: f.project},
	}
}

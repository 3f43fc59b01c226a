package nn

import (
	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// BatchNorm normalizes each channel (last axis) across all other axes.
//
// In training mode the statistics come from the current batch. In inference
// mode the stored moving statistics are used. The moving statistics are
// weights like any other: they are loaded from a state dict and are never
// updated by Forward.
type BatchNorm struct {
	Gamma      *Parameter // learnable scale [channels]
	Beta       *Parameter // learnable shift [channels]
	MovingMean *Parameter // running mean [channels]
	MovingVar  *Parameter // running variance [channels]
	Epsilon    float32
}

// NewBatchNorm creates a BatchNorm over the given channel count.
func NewBatchNorm(channels int, epsilon float32) *BatchNorm {
	return &BatchNorm{
		Gamma:      NewParameter("gamma", tensor.Ones(tensor.Shape{channels})),
		Beta:       NewParameter("beta", tensor.Zeros(tensor.Shape{channels})),
		MovingMean: NewParameter("moving_mean", tensor.Zeros(tensor.Shape{channels})),
		MovingVar:  NewParameter("moving_variance", tensor.Ones(tensor.Shape{channels})),
		Epsilon:    epsilon,
	}
}

// Forward applies batch normalization.
//
// Shapes:
//   - input: [..., channels]
//   - output: [..., channels]
func (bn *BatchNorm) Forward(x *tensor.Tensor, opts CallOptions) (*tensor.Tensor, error) {
	channels := bn.Gamma.Tensor().NumElements()
	if got := x.Dim(-1); got != channels {
		return nil, &ShapeError{Layer: "BatchNorm", Want: channels, Got: got}
	}

	mean, variance := bn.MovingMean.Tensor().Data(), bn.MovingVar.Tensor().Data()
	if opts.Training {
		flat := x.Reshape(-1, channels)
		mean = flat.Mean(0, false).Data()
		centered := flat.Sub(tensor.MustFromSlice(mean, tensor.Shape{channels}))
		variance = centered.Mul(centered).Mean(0, false).Data()
	}

	out := x.Clone()
	data := out.Data()
	gamma, beta := bn.Gamma.Tensor().Data(), bn.Beta.Tensor().Data()
	for i := range data {
		c := i % channels
		data[i] = gamma[c]*(data[i]-mean[c])/math32.Sqrt(variance[c]+bn.Epsilon) + beta[c]
	}
	return out, nil
}

// Parameters returns gamma, beta and the moving statistics.
func (bn *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{bn.Gamma, bn.Beta, bn.MovingMean, bn.MovingVar}
}

// LoadStateDict loads all four tensors.
func (bn *BatchNorm) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	for _, p := range bn.Parameters() {
		if err := loadInto(p, stateDict); err != nil {
			return err
		}
	}
	return nil
}

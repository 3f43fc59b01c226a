package nn

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Dropout zeroes elements with probability Rate during training and scales
// the survivors by 1/(1-Rate). Outside training it is the identity.
type Dropout struct {
	Rate float32
}

// NewDropout creates a Dropout layer. rate must be in [0, 1).
func NewDropout(rate float32) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("NewDropout: rate must be in [0, 1), got %v", rate))
	}
	return &Dropout{Rate: rate}
}

// Forward applies dropout using opts.Rand for the mask.
func (d *Dropout) Forward(x *tensor.Tensor, opts CallOptions) *tensor.Tensor {
	if !opts.Training || d.Rate == 0 {
		return x
	}
	if opts.Rand == nil {
		panic("Dropout.Forward: training mode requires a random source")
	}
	keep := 1 - d.Rate
	scale := 1 / keep
	out := x.Clone()
	data := out.Data()
	for i := range data {
		if opts.Rand.Float32() < d.Rate {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}
	return out
}

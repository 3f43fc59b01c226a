package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// MaxPool1D takes the maximum over sliding windows of the time axis.
//
// With PaddingSame the output has ceil(time/stride) steps and padded
// positions never win the maximum. With PaddingValid it has
// floor((time-pool)/stride)+1 steps.
//
// Example:
//
//	pool := nn.NewMaxPool1D(3, 2, nn.PaddingSame)
//	y := pool.Forward(x) // [B, 32, C] -> [B, 16, C]
type MaxPool1D struct {
	poolSize int
	stride   int
	padding  Padding
}

// NewMaxPool1D creates a MaxPool1D layer.
func NewMaxPool1D(poolSize, stride int, padding Padding) *MaxPool1D {
	if poolSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("NewMaxPool1D: pool=%d stride=%d must be positive", poolSize, stride))
	}
	if padding != PaddingSame && padding != PaddingValid {
		panic(fmt.Sprintf("NewMaxPool1D: unsupported padding %q", padding))
	}
	return &MaxPool1D{poolSize: poolSize, stride: stride, padding: padding}
}

// OutputSteps returns the pooled length for an input of the given length.
func (m *MaxPool1D) OutputSteps(steps int) int {
	if m.padding == PaddingSame {
		return (steps + m.stride - 1) / m.stride
	}
	if steps < m.poolSize {
		return 0
	}
	return (steps-m.poolSize)/m.stride + 1
}

// Forward pools [batch, time, channels] along time.
func (m *MaxPool1D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 3 {
		panic(fmt.Sprintf("MaxPool1D.Forward: expected 3D input, got shape %v", x.Shape()))
	}
	batch, steps, channels := x.Dim(0), x.Dim(1), x.Dim(2)
	outSteps := m.OutputSteps(steps)

	left := 0
	if m.padding == PaddingSame {
		total := max((outSteps-1)*m.stride+m.poolSize-steps, 0)
		left = total / 2
	}

	out := tensor.Full(tensor.Shape{batch, outSteps, channels}, math32.Inf(-1))
	src, dst := x.Data(), out.Data()
	for b := 0; b < batch; b++ {
		for t := 0; t < outSteps; t++ {
			row := dst[(b*outSteps+t)*channels : (b*outSteps+t+1)*channels]
			for k := 0; k < m.poolSize; k++ {
				s := t*m.stride + k - left
				if s < 0 || s >= steps {
					continue
				}
				in := src[(b*steps+s)*channels : (b*steps+s+1)*channels]
				for c, v := range in {
					if v > row[c] {
						row[c] = v
					}
				}
			}
		}
	}
	return out
}

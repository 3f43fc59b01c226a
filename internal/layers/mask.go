package layers

import "github.com/imu1984/Time-series-prediction/internal/tensor"

// MaskValue is the additive bias placed on forbidden attention positions.
const MaskValue float32 = -1e9

// CausalMask returns the additive [1, T, T] mask that stops position i from
// attending to any j > i.
//
// Example (T = 3):
//
//	[[0, -1e9, -1e9],
//	 [0,    0, -1e9],
//	 [0,    0,    0]]
func CausalMask(steps int) *tensor.Tensor {
	m := tensor.Zeros(tensor.Shape{1, steps, steps})
	data := m.Data()
	for i := 0; i < steps; i++ {
		for j := i + 1; j < steps; j++ {
			data[i*steps+j] = MaskValue
		}
	}
	return m
}

// Masked is the boolean view of CausalMask.
func Masked(i, j int) bool {
	return j > i
}

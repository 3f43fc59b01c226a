package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

func randn(seed uint64, shape ...int) *tensor.Tensor {
	return tensor.RandNormal(tensor.Shape(shape), 0, 1, tensor.NewRand(seed))
}

func inference() nn.CallOptions {
	return nn.CallOptions{Rand: tensor.NewRand(0)}
}

func TestAttention_OutputShape(t *testing.T) {
	attn, err := NewAttention(16, 4, 0, nn.NewInitializer(1))
	require.NoError(t, err)

	q := randn(1, 2, 5, 3)
	kv := randn(2, 2, 7, 3)
	y, err := attn.Forward(q, kv, kv, nil, inference())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5, 16}, y.Shape())
	assert.True(t, y.AllFinite())
	assert.Len(t, attn.Parameters(), 3)
}

func TestAttention_HeadsMustDivideHidden(t *testing.T) {
	_, err := NewAttention(10, 4, 0, nn.NewInitializer(1))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	_, err = NewProbAttention(10, 3, DefaultProbFactor, 0, nn.NewInitializer(1))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	_, err = NewAttention(8, 0, 0, nn.NewInitializer(1))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAttention_InputErrors(t *testing.T) {
	attn, err := NewAttention(8, 2, 0, nn.NewInitializer(1))
	require.NoError(t, err)

	x := randn(1, 2, 4, 3)
	_, err = attn.Forward(x, randn(2, 3, 4, 3), randn(2, 3, 4, 3), nil, inference())
	assert.Error(t, err, "batch mismatch")

	_, err = attn.Forward(x, x, x, tensor.Zeros(tensor.Shape{1, 4, 5}), inference())
	assert.Error(t, err, "mask shape")

	_, err = attn.Forward(x, x, x, nil, inference())
	require.NoError(t, err)
	_, err = attn.Forward(randn(1, 2, 4, 5), x, x, nil, inference())
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)
}

func TestCausalMask(t *testing.T) {
	for _, steps := range []int{1, 2, 5, 9} {
		m := CausalMask(steps)
		assert.Equal(t, tensor.Shape{1, steps, steps}, m.Shape())
		for i := 0; i < steps; i++ {
			for j := 0; j < steps; j++ {
				if Masked(i, j) {
					assert.Equal(t, MaskValue, m.At(0, i, j))
				} else {
					assert.Equal(t, float32(0), m.At(0, i, j))
				}
			}
		}
	}
	assert.True(t, Masked(0, 1))
	assert.False(t, Masked(1, 1))
	assert.False(t, Masked(2, 1))
}

func TestAttention_CausalMaskBlocksFuture(t *testing.T) {
	const steps = 9
	attn, err := NewAttention(8, 2, 0, nn.NewInitializer(3))
	require.NoError(t, err)
	mask := CausalMask(steps)

	x := randn(4, 2, steps, 3)
	y, err := attn.Forward(x, x, x, mask, inference())
	require.NoError(t, err)

	for cut := 0; cut < steps-1; cut++ {
		perturbed := x.Clone()
		for j := cut + 1; j < steps; j++ {
			for f := 0; f < 3; f++ {
				perturbed.Set(perturbed.At(1, j, f)+50, 1, j, f)
			}
		}
		yp, err := attn.Forward(perturbed, perturbed, perturbed, mask, inference())
		require.NoError(t, err)
		assert.True(t, y.Narrow(1, 0, cut+1).Equal(yp.Narrow(1, 0, cut+1)),
			"positions <= %d must not see later inputs", cut)
	}
}

func TestAttention_DropoutOnlyInTraining(t *testing.T) {
	attn, err := NewAttention(8, 1, 0.5, nn.NewInitializer(1))
	require.NoError(t, err)
	x := randn(1, 1, 6, 2)

	a, err := attn.Forward(x, x, x, nil, inference())
	require.NoError(t, err)
	b, err := attn.Forward(x, x, x, nil, inference())
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	c, err := attn.Forward(x, x, x, nil, nn.CallOptions{Training: true, Rand: tensor.NewRand(9)})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestScaledDotProduct_UniformKeys(t *testing.T) {
	// Identical keys give uniform weights, so the output is the mean value.
	q := randn(1, 1, 1, 2, 4)
	k := tensor.Ones(tensor.Shape{1, 1, 3, 4})
	v := tensor.MustFromSlice([]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}, tensor.Shape{1, 1, 3, 4})

	out := ScaledDotProduct(q, k, v, nil, 0)
	for i, want := range []float32{1.0 / 3, 1.0 / 3, 1.0 / 3, 0} {
		assert.InDelta(t, want, out.Data()[i], 1e-6)
	}
}

package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

func TestLayerNorm_Basic(t *testing.T) {
	norm := NewLayerNorm(3, 1e-5)
	x := tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	y, err := norm.Forward(x)
	require.NoError(t, err)

	// mean = 2, var = 2/3 -> [-1.2247, 0, 1.2247]
	expected := []float32{-1.2247, 0, 1.2247, -1.2247, 0, 1.2247}
	for i, v := range y.Data() {
		assert.InDelta(t, expected[i], v, 1e-3)
	}
}

func TestLayerNorm_GammaAndBeta(t *testing.T) {
	norm := NewLayerNorm(2, 1e-5)
	require.NoError(t, norm.LoadStateDict(map[string]*tensor.Tensor{
		"gamma": tensor.MustFromSlice([]float32{2, 3}, tensor.Shape{2}),
		"beta":  tensor.MustFromSlice([]float32{0.5, 1}, tensor.Shape{2}),
	}))

	y, err := norm.Forward(tensor.MustFromSlice([]float32{2, 4}, tensor.Shape{1, 2}))
	require.NoError(t, err)
	// normalized = [-1, 1]
	assert.InDelta(t, -1.5, y.Data()[0], 1e-3)
	assert.InDelta(t, 4.0, y.Data()[1], 1e-3)
}

func TestLayerNorm_ShapeMismatch(t *testing.T) {
	_, err := NewLayerNorm(4, 1e-5).Forward(tensor.Ones(tensor.Shape{2, 3}))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBatchNorm_TrainingUsesBatchStatistics(t *testing.T) {
	bn := NewBatchNorm(2, 1e-5)
	x := tensor.MustFromSlice([]float32{
		1, 10,
		3, 30,
	}, tensor.Shape{1, 2, 2})

	y, err := bn.Forward(x, CallOptions{Training: true})
	require.NoError(t, err)
	for i, want := range []float32{-1, -1, 1, 1} {
		assert.InDelta(t, want, y.Data()[i], 1e-3)
	}

	// Inference uses moving statistics (zero mean, unit variance).
	yi, err := bn.Forward(x, CallOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 10, yi.Data()[1], 1e-3)

	// Moving statistics are never updated by Forward.
	assert.Equal(t, []float32{0, 0}, bn.MovingMean.Tensor().Data())
}

func TestBatchNorm_Parameters(t *testing.T) {
	bn := NewBatchNorm(3, 1e-3)
	assert.Equal(t, []string{"beta", "gamma", "moving_mean", "moving_variance"}, Names(bn.Parameters()))
	_, err := bn.Forward(tensor.Ones(tensor.Shape{1, 2, 4}), CallOptions{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMaxPool1D_Same(t *testing.T) {
	pool := NewMaxPool1D(3, 2, PaddingSame)
	x := tensor.MustFromSlice([]float32{1, 5, 2, 4, 3}, tensor.Shape{1, 5, 1})

	y := pool.Forward(x)
	assert.Equal(t, tensor.Shape{1, 3, 1}, y.Shape())
	// Windows over the padded sequence [pad, 1, 5, 2, 4, 3, pad].
	assert.Equal(t, []float32{5, 5, 4}, y.Data())

	assert.Equal(t, 16, pool.OutputSteps(32))
	assert.Equal(t, 1, pool.OutputSteps(1))
}

func TestMaxPool1D_Valid(t *testing.T) {
	pool := NewMaxPool1D(2, 2, PaddingValid)
	x := tensor.MustFromSlice([]float32{1, 5, 2, 4, 3}, tensor.Shape{1, 5, 1})
	assert.Equal(t, []float32{5, 4}, pool.Forward(x).Data())
}

func TestDropout(t *testing.T) {
	x := tensor.Ones(tensor.Shape{1000})
	d := NewDropout(0.5)

	assert.Same(t, x, d.Forward(x, CallOptions{}))

	y := d.Forward(x, CallOptions{Training: true, Rand: tensor.NewRand(1)})
	zeros := 0
	for _, v := range y.Data() {
		if v == 0 {
			zeros++
		} else {
			assert.Equal(t, float32(2), v)
		}
	}
	assert.InDelta(t, 500, zeros, 80)

	assert.Panics(t, func() { d.Forward(x, CallOptions{Training: true}) })
	assert.Panics(t, func() { NewDropout(1) })
}

func TestActivationByName(t *testing.T) {
	for _, name := range []string{"", "linear", "relu", "tanh", "sigmoid", "elu", "gelu", "ReLU"} {
		_, err := ActivationByName(name)
		assert.NoError(t, err, name)
	}
	_, err := ActivationByName("swish")
	assert.Error(t, err)

	gelu, _ := ActivationByName("gelu")
	y := gelu(tensor.MustFromSlice([]float32{0, 1}, tensor.Shape{2}))
	assert.InDelta(t, 0.8412, y.Data()[1], 1e-3)
}

func TestGatedUnit(t *testing.T) {
	x := tensor.MustFromSlice([]float32{0, 1, 0, 100}, tensor.Shape{1, 4})
	y := GatedUnit(x)
	assert.Equal(t, tensor.Shape{1, 2}, y.Shape())
	assert.InDelta(t, 0, y.Data()[0], 1e-6)
	assert.InDelta(t, 0.7616, y.Data()[1], 1e-3)
}

func TestStateDictHelpers(t *testing.T) {
	dense := NewDense(2, nil, true, NewInitializer(1))
	_, err := dense.Forward(tensor.Ones(tensor.Shape{1, 3}))
	require.NoError(t, err)

	params := Prefix("decoder.dense1", dense.Parameters())
	assert.Equal(t, []string{"decoder.dense1.bias", "decoder.dense1.kernel"}, Names(params))
	assert.Equal(t, 8, CountParameters(params))

	sd := StateDict(params)
	sub := SubDict(sd, "decoder.dense1")
	assert.Len(t, sub, 2)
	assert.Same(t, dense.Parameters()[0].Tensor(), sub["kernel"])
	assert.Empty(t, SubDict(sd, "decoder.dense"))
}

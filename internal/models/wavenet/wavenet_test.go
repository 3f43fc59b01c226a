package wavenet

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/inputs"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Filters = 8
	cfg.DenseHiddenSize = 4
	return cfg
}

func rand3(seed uint64, b, t, f int) *tensor.Tensor {
	return tensor.RandUniform(tensor.Shape{b, t, f}, 0, 1, tensor.NewRand(seed))
}

func covariateInputs(batch, steps, horizon int) inputs.Dict {
	return inputs.Dict{
		inputs.KeyX:              rand3(1, batch, steps, 1),
		inputs.KeyEncoderFeature: rand3(2, batch, steps, 2),
		inputs.KeyDecoderFeature: rand3(3, batch, horizon, 3),
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dilations", func(c *Config) { c.DilationRates = nil }},
		{"kernel count", func(c *Config) { c.KernelSizes = []int{2} }},
		{"zero dilation", func(c *Config) { c.DilationRates[1] = 0 }},
		{"negative kernel", func(c *Config) { c.KernelSizes[0] = -2 }},
		{"zero filters", func(c *Config) { c.Filters = 0 }},
		{"negative hidden", func(c *Config) { c.DenseHiddenSize = -1 }},
		{"sampling above one", func(c *Config) { c.ScheduledSampling = 1.5 }},
		{"sampling NaN", func(c *Config) { c.ScheduledSampling = float32(math.NaN()) }},
		{"unknown variant", func(c *Config) { c.DecoderVariant = "graph" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, config.ErrInvalidConfig)

			_, err = New(cfg, 3)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}

	_, err := New(DefaultConfig(), 0)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfig_MapRoundTrip(t *testing.T) {
	m, err := config.ToMap(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, ModelType, m[config.ModelTypeKey])
	assert.Equal(t, []any{1, 2, 4, 8}, m["dilation_rates"])
	assert.Equal(t, 128, m["filters"])
	assert.Equal(t, 1, m["scheduled_sampling"])
	assert.Equal(t, VariantEager, m["decoder_variant"])

	m["filters"] = 16
	cfg := DefaultConfig()
	require.NoError(t, config.FromMap(m, &cfg))
	want := DefaultConfig()
	want.Filters = 16
	assert.Equal(t, want, cfg)
}

func TestModel_OwnsConfig(t *testing.T) {
	cfg := smallConfig()
	m, err := New(cfg, 4, base.WithSeed(6))
	require.NoError(t, err)

	in := covariateInputs(2, 24, 4)
	want, err := m.Predict(in)
	require.NoError(t, err)

	cfg.DilationRates[3] = 1000
	cfg.KernelSizes[0] = 9
	got, err := m.Predict(in)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "caller's slices changed the model")

	m.Config().(Config).DilationRates[0] = 7
	assert.Equal(t, []int{1, 2, 4, 8}, m.Config().(Config).DilationRates)
	assert.Equal(t, []int{2, 2, 2, 2}, m.Config().(Config).KernelSizes)
}

func TestModel_EndToEnd(t *testing.T) {
	for _, variant := range []string{VariantEager, VariantLoop} {
		t.Run(variant, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DecoderVariant = variant
			m, err := New(cfg, 9, base.WithSeed(42))
			require.NoError(t, err)

			y, err := m.Predict(covariateInputs(1, 32, 9))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 9, 1}, y.Shape())
			assert.True(t, y.AllFinite())
		})
	}
}

func TestModel_ArrayInput(t *testing.T) {
	m, err := New(smallConfig(), 5)
	require.NoError(t, err)

	out, err := m.Forward(inputs.Array{X: rand3(4, 3, 20, 2)}, &base.ForwardOptions{OutputHiddenStates: true})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 5, 1}, out.Prediction.Shape())
	assert.Equal(t, tensor.Shape{3, 20, 1}, out.EncoderForecast.Shape())
	require.Len(t, out.HiddenStates, 4)
	for _, h := range out.HiddenStates {
		assert.Equal(t, tensor.Shape{3, 25, 8}, h.Shape())
	}
	assert.Empty(t, out.Warnings)
}

func TestModel_OwnPredictionIsDeterministic(t *testing.T) {
	cfg := smallConfig()
	cfg.ScheduledSampling = 1
	m, err := New(cfg, 6, base.WithSeed(7))
	require.NoError(t, err)
	in := covariateInputs(2, 16, 6)

	first, err := m.Predict(in)
	require.NoError(t, err)
	second, err := m.Predict(in)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	// Training only adds the sampling draw, which never picks a teacher here.
	train, err := m.Forward(in, &base.ForwardOptions{Training: true, Rand: tensor.NewRand(3)})
	require.NoError(t, err)
	assert.True(t, first.Equal(train.Prediction))

	// Step t is fed the prediction of step t-1.
	out, err := m.Forward(in, nil)
	require.NoError(t, err)
	for step := 1; step < 6; step++ {
		assert.True(t, out.StepInputs[step].Equal(out.Prediction.Select(1, step-1)), "step %d", step)
	}
}

func TestModel_FullTeacherForcing(t *testing.T) {
	const horizon = 7
	cfg := smallConfig()
	cfg.ScheduledSampling = 0
	m, err := New(cfg, horizon)
	require.NoError(t, err)

	in := covariateInputs(2, 16, horizon)
	teacher := rand3(9, 2, horizon, 1)
	out, err := m.Forward(in, &base.ForwardOptions{Teacher: teacher, Training: true, Rand: tensor.NewRand(1)})
	require.NoError(t, err)
	require.Len(t, out.StepInputs, horizon)

	last := in[inputs.KeyX].Narrow(1, 15, 1).Reshape(2, 1)
	assert.True(t, out.StepInputs[0].Equal(last))
	for step := 1; step < horizon; step++ {
		want := teacher.Select(1, step-1)
		assert.True(t, out.StepInputs[step].Equal(want), "step %d", step)
	}

	// A [B, H] teacher is accepted too.
	flat, err := m.Forward(in, &base.ForwardOptions{Teacher: teacher.Reshape(2, horizon), Training: true, Rand: tensor.NewRand(1)})
	require.NoError(t, err)
	assert.True(t, out.Prediction.Equal(flat.Prediction))

	// Outside training the teacher is ignored.
	inference, err := m.Forward(in, &base.ForwardOptions{Teacher: teacher})
	require.NoError(t, err)
	plain, err := m.Predict(in)
	require.NoError(t, err)
	assert.True(t, inference.Prediction.Equal(plain))
}

func TestModel_DilationLongerThanHistory(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	cfg := smallConfig()
	cfg.DilationRates = []int{1, 64}
	cfg.KernelSizes = []int{2, 2}
	m, err := New(cfg, 4, base.WithLogger(logger))
	require.NoError(t, err)

	out, err := m.Forward(inputs.Array{X: rand3(1, 2, 8, 1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 1}, out.Prediction.Shape())
	assert.True(t, out.Prediction.AllFinite())

	require.Len(t, out.Warnings, 1)
	assert.ErrorIs(t, out.Warnings[0], ErrDilationExceedsHistory)
	var de *DilationError
	require.True(t, errors.As(out.Warnings[0], &de))
	assert.Equal(t, DilationError{Level: 1, Dilation: 64, Available: 8}, *de)
	assert.Contains(t, logs.String(), "dilation exceeds history")

	t.Setenv("TFTS_STRICT_HISTORY", "1")
	_, err = m.Forward(inputs.Array{X: rand3(1, 2, 8, 1)}, nil)
	assert.ErrorIs(t, err, ErrDilationExceedsHistory)
}

func TestModel_VariantsAgree(t *testing.T) {
	const horizon = 6
	eagerCfg := smallConfig()
	eagerCfg.ScheduledSampling = 0.5
	loopCfg := eagerCfg
	loopCfg.DecoderVariant = VariantLoop

	eager, err := New(eagerCfg, horizon, base.WithSeed(1))
	require.NoError(t, err)
	loop, err := New(loopCfg, horizon, base.WithSeed(2))
	require.NoError(t, err)

	in := covariateInputs(3, 12, horizon)
	teacher := rand3(5, 3, horizon, 1)
	_, err = eager.Predict(in)
	require.NoError(t, err)
	require.NoError(t, loop.LoadStateDict(base.StateDict(eager)))

	for _, training := range []bool{false, true} {
		a, err := eager.Forward(in, &base.ForwardOptions{Teacher: teacher, Training: training, Rand: tensor.NewRand(11)})
		require.NoError(t, err)
		b, err := loop.Forward(in, &base.ForwardOptions{Teacher: teacher, Training: training, Rand: tensor.NewRand(11)})
		require.NoError(t, err)
		assert.True(t, a.Prediction.Equal(b.Prediction), "training=%v", training)
	}
}

func TestModel_ShapeErrors(t *testing.T) {
	m, err := New(smallConfig(), 4)
	require.NoError(t, err)
	_, err = m.Predict(covariateInputs(1, 10, 4))
	require.NoError(t, err)

	// Encoder covariate width changed after binding.
	in := covariateInputs(1, 10, 4)
	in[inputs.KeyEncoderFeature] = rand3(2, 1, 10, 3)
	_, err = m.Predict(in)
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)

	_, err = m.Predict(covariateInputs(1, 10, 5))
	assert.ErrorIs(t, err, inputs.ErrInvalidInputShape)

	_, err = m.Forward(covariateInputs(1, 10, 4), &base.ForwardOptions{Teacher: rand3(1, 1, 3, 1)})
	assert.ErrorIs(t, err, inputs.ErrInvalidInputShape)
}

func TestModel_StateDict(t *testing.T) {
	m, err := New(smallConfig(), 3, base.WithSeed(5))
	require.NoError(t, err)
	assert.Empty(t, m.Parameters(), "weights are bound on first use")

	in := covariateInputs(2, 10, 3)
	want, err := m.Predict(in)
	require.NoError(t, err)

	sd := base.StateDict(m)
	assert.Contains(t, sd, "encoder.conv_time.3.kernel")
	assert.Contains(t, sd, "encoder.dense_time2.kernel")
	assert.Contains(t, sd, "decoder.dense3.kernel")
	assert.NotContains(t, sd, "decoder.dense3.bias")
	assert.Equal(t, tensor.Shape{4, 8}, sd["decoder.dense1.kernel"].Shape())

	restored, err := New(smallConfig(), 3, base.WithSeed(99))
	require.NoError(t, err)
	require.NoError(t, restored.LoadStateDict(sd))
	got, err := restored.Predict(in)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestModel_ConcurrentForward(t *testing.T) {
	m, err := New(smallConfig(), 5, base.WithSeed(3))
	require.NoError(t, err)

	batches := make([]inputs.Inputs, 8)
	for i := range batches {
		batches[i] = inputs.Array{X: rand3(uint64(i), 2, 16, 1)}
	}
	results := make([]*tensor.Tensor, len(batches))
	var g errgroup.Group
	for i, in := range batches {
		g.Go(func() error {
			y, err := m.Predict(in)
			results[i] = y
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i, in := range batches {
		y, err := m.Predict(in)
		require.NoError(t, err)
		assert.True(t, y.Equal(results[i]), "batch %d", i)
	}
}

func TestArena(t *testing.T) {
	states := []*tensor.Tensor{
		tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 2, 2}),
	}
	a := newArena(states, 2)
	assert.Equal(t, 2, a.size(0))
	assert.Equal(t, []float32{3, 4, 7, 8}, a.back(0, 1).Data())
	assert.Equal(t, []float32{1, 2, 5, 6}, a.back(0, 2).Data())

	a.push(0, tensor.MustFromSlice([]float32{9, 9, 0, 0}, tensor.Shape{2, 2}))
	assert.Equal(t, 3, a.size(0))
	assert.Equal(t, []float32{9, 9, 0, 0}, a.back(0, 1).Data())
	assert.Equal(t, []float32{1, 2, 3, 4, 9, 9, 5, 6, 7, 8, 0, 0}, a.states(0).Data())

	// Encoder states are copied, not aliased.
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, states[0].Data())

	a.push(0, tensor.Zeros(tensor.Shape{2, 2}))
	assert.Panics(t, func() { a.push(0, tensor.Zeros(tensor.Shape{2, 2})) })
}

func TestConfig_CheckHistory(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.CheckHistory(8))
	err := cfg.CheckHistory(7)
	assert.ErrorIs(t, err, ErrDilationExceedsHistory)
	assert.EqualError(t, err, "dilation exceeds history: level 3 dilation 8, only 7 steps available")
}
